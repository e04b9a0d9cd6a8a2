package progression

import (
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT IDS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementID identifies a one-shot achievement.
type AchievementID string

const (
	FirstPlanCreated   AchievementID = "FIRST_PLAN_CREATED"
	FirstPlanCompleted AchievementID = "FIRST_PLAN_COMPLETED"
	FirstHabitCreated  AchievementID = "FIRST_HABIT_CREATED"
	HabitStreak7Days   AchievementID = "HABIT_STREAK_7_DAYS"
	HabitStreak30Days  AchievementID = "HABIT_STREAK_30_DAYS"
	FirstGoalCreated   AchievementID = "FIRST_GOAL_CREATED"
	FirstGoalCompleted AchievementID = "FIRST_GOAL_COMPLETED"
	FiveGoalsCompleted AchievementID = "FIVE_GOALS_COMPLETED"
	FirstCoachChat     AchievementID = "FIRST_COACH_CHAT"
	Level5Reached      AchievementID = "LEVEL_5_REACHED"
	MultiCategoryPlan  AchievementID = "MULTI_CATEGORY_PLAN"
)

// String returns the string representation.
func (id AchievementID) String() string {
	return string(id)
}

// StreakMilestones maps the streak lengths that unlock an achievement.
var StreakMilestones = map[int]AchievementID{
	7:  HabitStreak7Days,
	30: HabitStreak30Days,
}

// MilestoneLevel is the level that unlocks Level5Reached. A level-up that
// jumps over it does not.
const MilestoneLevel = 5

// FiveGoalsThreshold is the number of completed goals for FiveGoalsCompleted.
const FiveGoalsThreshold = 5

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementDefinition is a static catalogue entry.
type AchievementDefinition struct {
	ID          AchievementID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	PointReward int           `json:"point_reward"`
}

// EarnedAchievement is a write-once record of an unlocked achievement.
type EarnedAchievement struct {
	AchievementID AchievementID `json:"achievement_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	PointReward   int           `json:"point_reward"`
	EarnedAt      time.Time     `json:"earned_at"`
}

// Earn stamps a definition as earned at the given time.
func (d AchievementDefinition) Earn(at time.Time) EarnedAchievement {
	return EarnedAchievement{
		AchievementID: d.ID,
		Name:          d.Name,
		Description:   d.Description,
		PointReward:   d.PointReward,
		EarnedAt:      at,
	}
}

// catalogue is ordered the way the UI lists it.
var catalogue = []AchievementDefinition{
	{ID: FirstPlanCreated, Name: "Pläne-Pionier", Description: "Du hast deinen ersten Trainingsplan erstellt!", PointReward: 20},
	{ID: FirstPlanCompleted, Name: "Durchstarter", Description: "Du hast dein erstes Training abgeschlossen!", PointReward: 30},
	{ID: FirstHabitCreated, Name: "Gewohnheits-Starter", Description: "Du hast deine erste Gewohnheit angelegt!", PointReward: 15},
	{ID: HabitStreak7Days, Name: "Dranbleiber (7 Tage)", Description: "Eine Gewohnheit 7 Tage am Stück durchgehalten!", PointReward: 50},
	{ID: HabitStreak30Days, Name: "Marathon-Mensch (30 T.)", Description: "Eine Gewohnheit 30 Tage am Stück durchgehalten!", PointReward: 150},
	{ID: FirstGoalCreated, Name: "Zielsetzer", Description: "Du hast dein erstes SMART-Ziel definiert!", PointReward: 20},
	{ID: FirstGoalCompleted, Name: "Ziel-Erreicher", Description: "Ein SMART-Ziel erfolgreich abgeschlossen!", PointReward: 75},
	{ID: FiveGoalsCompleted, Name: "Ziele-Champion (5)", Description: "Fünf SMART-Ziele erfolgreich abgeschlossen!", PointReward: 100},
	{ID: FirstCoachChat, Name: "Gesprächs-Initiator", Description: "Du hast dein erstes Gespräch mit dem Coach geführt!", PointReward: 10},
	{ID: Level5Reached, Name: "Meister-Status", Description: "Du hast Level 5 erreicht!", PointReward: 200},
	{ID: MultiCategoryPlan, Name: "Allrounder-Plan", Description: "Einen Trainingsplan mit Übungen aus allen 3 Kategorien erstellt!", PointReward: 40},
}

// Registry is a read-only lookup over achievement definitions.
type Registry struct {
	ordered []AchievementDefinition
	byID    map[AchievementID]AchievementDefinition
}

// NewRegistry builds a registry from definitions. Duplicate ids or negative
// rewards are rejected.
func NewRegistry(defs []AchievementDefinition) (*Registry, error) {
	r := &Registry{
		ordered: make([]AchievementDefinition, 0, len(defs)),
		byID:    make(map[AchievementID]AchievementDefinition, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, shared.Validation("progression", "NewRegistry", "achievement id must not be empty")
		}
		if d.PointReward < 0 {
			return nil, shared.Validation("progression", "NewRegistry", "achievement reward must not be negative: "+d.ID.String())
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, shared.Validation("progression", "NewRegistry", "duplicate achievement: "+d.ID.String())
		}
		r.ordered = append(r.ordered, d)
		r.byID[d.ID] = d
	}
	return r, nil
}

// DefaultRegistry returns the built-in catalogue.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(catalogue)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the definition for id or a not-found error.
func (r *Registry) Get(id AchievementID) (AchievementDefinition, error) {
	d, ok := r.byID[id]
	if !ok {
		return AchievementDefinition{}, shared.WrapError("progression", "Get", shared.ErrNotFound,
			"unknown achievement "+id.String(), shared.ErrUnknownAchievement)
	}
	return d, nil
}

// All returns the catalogue in stable order.
func (r *Registry) All() []AchievementDefinition {
	cp := make([]AchievementDefinition, len(r.ordered))
	copy(cp, r.ordered)
	return cp
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	return len(r.ordered)
}
