// Package habit contains the habit model and the streak tracker.
// This is pure domain logic without external dependencies.
package habit

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// MaxNameLength bounds habit names.
const MaxNameLength = 120

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: HABIT
// ══════════════════════════════════════════════════════════════════════════════

// Habit is a recurring daily activity with a consecutive-day streak.
type Habit struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	// Streak counts consecutive completions. Never negative.
	Streak int `json:"streak"`

	// LastCompletedDate is a calendar date (midnight UTC) or nil.
	LastCompletedDate *time.Time `json:"last_completed_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New validates the name and builds a habit with a zero streak.
func New(id, userID, name string, now time.Time) (*Habit, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if id == "" || userID == "" {
		return nil, shared.NewDomainError("habit", "New", shared.ErrInvalidID, "habit and user id are required")
	}
	return &Habit{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Rename changes the display name.
func (h *Habit) Rename(name string, now time.Time) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	h.Name = name
	h.UpdatedAt = now
	return nil
}

// CompletedToday reports whether the habit was completed on today.
// today must be a normalized calendar date.
func (h *Habit) CompletedToday(today time.Time) bool {
	return h.LastCompletedDate != nil && sameDay(*h.LastCompletedDate, today)
}

// Clone returns a deep copy.
func (h *Habit) Clone() *Habit {
	cp := *h
	if h.LastCompletedDate != nil {
		d := *h.LastCompletedDate
		cp.LastCompletedDate = &d
	}
	return &cp
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.ErrEmptyHabitName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", shared.NewDomainError("habit", "Validate", shared.ErrValueOutOfRange, "habit name is too long")
	}
	return name, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
