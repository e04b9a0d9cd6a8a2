package query

import (
	"context"
	"fmt"
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/pkg/timeutil"
)

// HabitDTO adds the derived completion flag.
type HabitDTO struct {
	*habit.Habit
	CompletedToday bool `json:"completed_today"`
}

// PlanDTO resolves exercise ids against the catalogue.
type PlanDTO struct {
	*training.Plan
	Exercises     []training.Exercise `json:"exercises"`
	AllCategories bool                `json:"all_categories"`
}

// ExerciseGroup is one category of the catalogue.
type ExerciseGroup struct {
	Category  training.Category   `json:"category"`
	Exercises []training.Exercise `json:"exercises"`
}

// CollectionReader lists a user's habits, goals and plans.
type CollectionReader struct {
	habits    habit.Repository
	goals     goal.Repository
	plans     training.PlanRepository
	exercises training.ExerciseCatalog
	clock     timeutil.Clock
	loc       *time.Location
}

// NewCollectionReader creates a new CollectionReader.
func NewCollectionReader(
	habits habit.Repository,
	goals goal.Repository,
	plans training.PlanRepository,
	exercises training.ExerciseCatalog,
	clock timeutil.Clock,
	loc *time.Location,
) *CollectionReader {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CollectionReader{habits: habits, goals: goals, plans: plans, exercises: exercises, clock: clock, loc: loc}
}

// ListHabits returns habits with today's completion state.
func (r *CollectionReader) ListHabits(ctx context.Context, userID string) ([]HabitDTO, error) {
	list, err := r.habits.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	today := timeutil.Today(r.clock, r.loc)

	out := make([]HabitDTO, 0, len(list))
	for _, h := range list {
		out = append(out, HabitDTO{Habit: h, CompletedToday: h.CompletedToday(today)})
	}
	return out, nil
}

// ListGoals returns goals in creation order.
func (r *CollectionReader) ListGoals(ctx context.Context, userID string) ([]*goal.Goal, error) {
	list, err := r.goals.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return list, nil
}

// ListPlans returns plans with their exercises resolved.
func (r *CollectionReader) ListPlans(ctx context.Context, userID string) ([]PlanDTO, error) {
	list, err := r.plans.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	exercises, err := r.exercises.ListExercises(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	catalog := training.IndexExercises(exercises)

	out := make([]PlanDTO, 0, len(list))
	for _, p := range list {
		dto := PlanDTO{Plan: p, AllCategories: p.CoversAllCategories(catalog)}
		for _, id := range p.ExerciseIDs {
			if ex, ok := catalog[id]; ok {
				dto.Exercises = append(dto.Exercises, ex)
			}
		}
		out = append(out, dto)
	}
	return out, nil
}

// ListExercises returns the catalogue grouped by category.
func (r *CollectionReader) ListExercises(ctx context.Context) ([]ExerciseGroup, error) {
	exercises, err := r.exercises.ListExercises(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}

	groups := make([]ExerciseGroup, 0, len(training.Categories))
	for _, c := range training.Categories {
		g := ExerciseGroup{Category: c, Exercises: []training.Exercise{}}
		for _, ex := range exercises {
			if ex.Category == c {
				g.Exercises = append(g.Exercises, ex)
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}
