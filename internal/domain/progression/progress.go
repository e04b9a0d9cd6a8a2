package progression

import (
	"context"
	"time"
)

// UserProgress is the persisted gamification state of one user.
type UserProgress struct {
	UserID string `json:"user_id"`

	// TotalPoints is never negative.
	TotalPoints int `json:"total_points"`

	// CurrentLevel always equals LevelForPoints(TotalPoints).Level.
	CurrentLevel int `json:"current_level"`

	// Version is the optimistic-concurrency token. It increments on every save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserProgress returns the initial state for a user without stored progress.
func NewUserProgress(userID string, now time.Time) UserProgress {
	return UserProgress{
		UserID:       userID,
		TotalPoints:  0,
		CurrentLevel: 1,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ProgressRepository persists progress and earned achievements.
type ProgressRepository interface {
	// GetProgress returns the stored progress or a NotFound error.
	GetProgress(ctx context.Context, userID string) (UserProgress, error)

	// SaveProgress writes p if the stored version still equals expectedVersion
	// and returns a Conflict error otherwise. expectedVersion 0 means "create".
	SaveProgress(ctx context.Context, p UserProgress, expectedVersion int64) error

	// GetEarned returns all earned achievements of a user.
	GetEarned(ctx context.Context, userID string) (map[AchievementID]EarnedAchievement, error)

	// MergeEarned inserts a single achievement if absent. It never overwrites.
	MergeEarned(ctx context.Context, userID string, a EarnedAchievement) error
}

// AtomicCommitter is implemented by stores that can write newly earned
// achievements and the progress row in one transaction.
type AtomicCommitter interface {
	CommitProgress(ctx context.Context, p UserProgress, expectedVersion int64, earned []EarnedAchievement) error
}
