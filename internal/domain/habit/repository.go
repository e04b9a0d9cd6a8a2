package habit

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists a user's habits.
type Repository interface {
	// List returns the user's habits ordered by creation time.
	List(ctx context.Context, userID string) ([]*Habit, error)

	// Get returns one habit or ErrHabitNotFound.
	Get(ctx context.Context, userID, habitID string) (*Habit, error)

	// Create inserts a habit and reports whether it is the user's first one.
	Create(ctx context.Context, h *Habit) (first bool, err error)

	// Save overwrites name, streak and last completion date.
	// Returns ErrHabitNotFound if the habit does not exist.
	Save(ctx context.Context, h *Habit) error

	// Delete removes a habit. Returns ErrHabitNotFound if absent.
	Delete(ctx context.Context, userID, habitID string) error
}

// Watcher delivers live updates of a user's habit collection.
type Watcher interface {
	// Watch calls onChange with the full collection after every change and
	// onError on delivery failures. The returned func stops the subscription.
	Watch(ctx context.Context, userID string, onChange func([]*Habit), onError func(error)) (unsubscribe func(), err error)
}
