package engine

import (
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// Inputs to the engine. Handling an event may enqueue further events; the
// queue is drained inside the same call.
// ══════════════════════════════════════════════════════════════════════════════

// Event is one of the types below.
type Event interface {
	eventName() string
}

// PointsAwarded adds Amount (may be negative) to the total.
type PointsAwarded struct {
	Amount int
	Reason string
}

// HabitToggled flips today's completion of Habit. With a habit repository
// configured, the engine re-reads the habit by ID before toggling.
type HabitToggled struct {
	Habit *habit.Habit
	Today time.Time
}

// GoalProgressChanged sets a goal's progress.
// OtherCompleted is the number of the user's other goals already completed.
// With a goal repository configured, the engine re-reads the goal and
// recounts OtherCompleted before applying the change.
type GoalProgressChanged struct {
	Goal           *goal.Goal
	NewProgress    int
	OtherCompleted int
}

// PlanCompleted records a finished training session.
type PlanCompleted struct {
	Plan *training.Plan
}

// AchievementCandidate asks to unlock an achievement if not yet earned.
type AchievementCandidate struct {
	ID progression.AchievementID
}

// ItemKind names what was created.
type ItemKind string

const (
	ItemHabit ItemKind = "habit"
	ItemGoal  ItemKind = "goal"
	ItemPlan  ItemKind = "plan"
)

// ItemCreated rewards creating a habit, goal or plan.
// AllCategories is only meaningful for plans.
type ItemCreated struct {
	Kind          ItemKind
	First         bool
	AllCategories bool
}

// CoachReplied rewards a coach exchange.
type CoachReplied struct {
	FirstUserTurn bool
	Replied       bool
}

func (PointsAwarded) eventName() string        { return "points_awarded" }
func (HabitToggled) eventName() string         { return "habit_toggled" }
func (GoalProgressChanged) eventName() string  { return "goal_progress_changed" }
func (PlanCompleted) eventName() string        { return "plan_completed" }
func (AchievementCandidate) eventName() string { return "achievement_candidate" }
func (ItemCreated) eventName() string          { return "item_created" }
func (CoachReplied) eventName() string         { return "coach_replied" }

// Creation rewards per item kind.
var creationPoints = map[ItemKind]int{
	ItemHabit: 10,
	ItemGoal:  20,
	ItemPlan:  15,
}

// firstOfKind maps an item kind to its first-of-kind achievement.
var firstOfKind = map[ItemKind]progression.AchievementID{
	ItemHabit: progression.FirstHabitCreated,
	ItemGoal:  progression.FirstGoalCreated,
	ItemPlan:  progression.FirstPlanCreated,
}

// CoachReplyPoints is awarded for every successful coach reply.
const CoachReplyPoints = 5
