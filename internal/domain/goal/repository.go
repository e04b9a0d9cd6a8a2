package goal

import (
	"context"
)

// Repository persists goals.
type Repository interface {
	// List returns the user's goals ordered by creation time.
	List(ctx context.Context, userID string) ([]*Goal, error)

	// Get returns one goal or ErrGoalNotFound.
	Get(ctx context.Context, userID, goalID string) (*Goal, error)

	// Create inserts a goal and reports whether it is the user's first one.
	Create(ctx context.Context, g *Goal) (first bool, err error)

	// Save overwrites a goal. Returns ErrGoalNotFound if absent.
	Save(ctx context.Context, g *Goal) error

	// Delete removes a goal. Returns ErrGoalNotFound if absent.
	Delete(ctx context.Context, userID, goalID string) error

	// CountCompleted returns how many of the user's goals are completed.
	CountCompleted(ctx context.Context, userID string) (int, error)
}
