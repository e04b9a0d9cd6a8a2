// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every DomainError carries one; predicates below test for them.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("empty value")
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrStorage marks a failed read or write. Callers report whether the
	// user's change was kept.
	ErrStorage = errors.New("storage failure")

	// ErrConflict is an optimistic-lock miss: the stored version moved.
	ErrConflict = errors.New("version conflict")

	ErrAPI         = errors.New("upstream error")
	ErrTimeout     = errors.New("timeout")
	ErrRateLimited = errors.New("rate limited")
)

// DomainError names where an error happened and what kind it is.
// errors.Is matches both the Kind and anything in the Err chain.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewDomainError builds an error without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError attaches domain context to err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

func NotFound(domain, op, what, id string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf("%s %q not found", what, id))
}

func Validation(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// Storage wraps a driver error from a repository.
func Storage(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStorage, "storage operation failed", err)
}

// Progression domain errors
var (
	ErrUnknownAchievement = NewDomainError("progression", "Get", ErrNotFound, "unknown achievement")
	ErrEmptyLevelTable    = NewDomainError("progression", "NewTable", ErrValidation, "level table must not be empty")
	ErrProgressConflict   = NewDomainError("progression", "SaveProgress", ErrConflict, "progress was modified concurrently")
)

// Habit domain errors
var (
	ErrHabitNotFound  = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrEmptyHabitName = NewDomainError("habit", "Validate", ErrEmptyValue, "habit name must not be empty")
)

// Goal domain errors
var (
	ErrGoalNotFound  = NewDomainError("goal", "Find", ErrNotFound, "goal not found")
	ErrEmptyGoalName = NewDomainError("goal", "Validate", ErrEmptyValue, "goal name must not be empty")
)

// Training domain errors
var (
	ErrPlanNotFound     = NewDomainError("training", "FindPlan", ErrNotFound, "training plan not found")
	ErrExerciseNotFound = NewDomainError("training", "FindExercise", ErrNotFound, "exercise not found")
	ErrEmptyPlan        = NewDomainError("training", "Validate", ErrEmptyValue, "training plan needs at least one exercise")
)

// Coach errors
var (
	ErrCoachUnavailable  = NewDomainError("coach", "SendPrompt", ErrAPI, "coach service is unavailable")
	ErrCoachTimeout      = NewDomainError("coach", "SendPrompt", ErrTimeout, "coach request timed out")
	ErrCoachRateLimited  = NewDomainError("coach", "SendPrompt", ErrRateLimited, "coach rate limit exceeded")
	ErrEmptyConversation = NewDomainError("coach", "Validate", ErrEmptyValue, "conversation must contain at least one user message")
)

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsStorage(err error) bool       { return errors.Is(err, ErrStorage) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }
func IsTimeout(err error) bool       { return errors.Is(err, ErrTimeout) }

// IsValidation covers every input-related kind.
func IsValidation(err error) bool {
	return isAny(err, ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange)
}

// IsAPI reports any upstream failure, including timeouts and rate limits.
func IsAPI(err error) bool {
	return isAny(err, ErrAPI, ErrTimeout, ErrRateLimited)
}

// IsRetryable reports failures that may succeed on a later attempt.
func IsRetryable(err error) bool {
	return isAny(err, ErrTimeout, ErrRateLimited, ErrConflict)
}
