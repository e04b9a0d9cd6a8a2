// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies the owner of all progression state.
type UserID string

// Users come from an external identity provider, so ids are opaque tokens.
var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@-]{0,127}$`)

// IsValid checks if the user ID is well formed.
func (u UserID) IsValid() bool {
	return userIDRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", NewDomainError("user", "Validate", ErrInvalidID, "invalid user ID")
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Points is a non-negative point total.
type Points int

// Add returns the sum clamped at zero.
func (p Points) Add(delta int) Points {
	next := int(p) + delta
	if next < 0 {
		return 0
	}
	return Points(next)
}

// Int returns the underlying value.
func (p Points) Int() int {
	return int(p)
}
