package engine

import (
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/notification"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

// Result is returned by every engine call.
type Result struct {
	// Progress is the state after the call (or the restored state on failure).
	Progress progression.UserProgress `json:"progress"`

	Level progression.LevelThreshold `json:"level"`
	Next  progression.NextLevelInfo  `json:"next_level"`

	LeveledUp   bool `json:"leveled_up"`
	PointsDelta int  `json:"points_delta"`

	// Unlocked lists achievements earned by this call, in unlock order.
	Unlocked      []progression.EarnedAchievement `json:"unlocked,omitempty"`
	Notifications []notification.Notification     `json:"notifications,omitempty"`

	// Entity results, set by the matching evaluation.
	Habit     *habit.Habit   `json:"habit,omitempty"`
	Completed bool           `json:"completed,omitempty"`
	Goal      *goal.Goal     `json:"goal,omitempty"`
	Plan      *training.Plan `json:"plan,omitempty"`
}

// Awarded reports whether id was unlocked by this call.
func (r Result) Awarded(id progression.AchievementID) bool {
	for _, a := range r.Unlocked {
		if a.AchievementID == id {
			return true
		}
	}
	return false
}

// State is a read-only copy of a user's progression.
type State struct {
	Progress progression.UserProgress                                  `json:"progress"`
	Level    progression.LevelThreshold                                `json:"level"`
	Next     progression.NextLevelInfo                                 `json:"next_level"`
	Earned   map[progression.AchievementID]progression.EarnedAchievement `json:"earned"`
	Quests   []progression.QuestStatus                                 `json:"quests"`
}

// txn collects the effects of one call.
type txn struct {
	now          time.Time
	pointsBefore int
	dirty        bool
	leveledUp    bool

	unlocked []progression.EarnedAchievement
	notes    []notification.Notification
	events   []shared.Event
	writes   []write

	habit     *habit.Habit
	completed bool
	goal      *goal.Goal
	plan      *training.Plan
}

func newTxn(now time.Time, pointsBefore int) *txn {
	return &txn{now: now, pointsBefore: pointsBefore}
}
