package training

import (
	"context"
	"strings"
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// Points for plan actions.
const (
	CompletionPoints = 25
)

// Plan is a user's named selection of exercises.
type Plan struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	ExerciseIDs []string `json:"exercise_ids"`

	// TimesCompleted counts finished training sessions.
	TimesCompleted  int        `json:"times_completed"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlan validates name and exercises against the catalogue.
func NewPlan(id, userID, name string, exerciseIDs []string, catalog map[string]Exercise, now time.Time) (*Plan, error) {
	p := &Plan{ID: id, UserID: userID, CreatedAt: now}
	if err := p.Edit(name, exerciseIDs, catalog, now); err != nil {
		return nil, err
	}
	return p, nil
}

// Edit replaces name and exercise selection. Duplicate ids are dropped.
func (p *Plan) Edit(name string, exerciseIDs []string, catalog map[string]Exercise, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("training", "Validate", shared.ErrEmptyValue, "plan name must not be empty")
	}
	if len(exerciseIDs) == 0 {
		return shared.ErrEmptyPlan
	}

	seen := make(map[string]bool, len(exerciseIDs))
	ids := make([]string, 0, len(exerciseIDs))
	for _, id := range exerciseIDs {
		if seen[id] {
			continue
		}
		if _, ok := catalog[id]; !ok {
			return shared.WrapError("training", "Validate", shared.ErrValidation, "unknown exercise "+id, shared.ErrExerciseNotFound)
		}
		seen[id] = true
		ids = append(ids, id)
	}

	p.Name = name
	p.ExerciseIDs = ids
	p.UpdatedAt = now
	return nil
}

// MarkCompleted records a finished training session.
func (p *Plan) MarkCompleted(now time.Time) {
	p.TimesCompleted++
	at := now
	p.LastCompletedAt = &at
	p.UpdatedAt = now
}

// CoversAllCategories reports whether the plan has at least one exercise from every category.
func (p *Plan) CoversAllCategories(catalog map[string]Exercise) bool {
	found := make(map[Category]bool, len(Categories))
	for _, id := range p.ExerciseIDs {
		if ex, ok := catalog[id]; ok {
			found[ex.Category] = true
		}
	}
	for _, c := range Categories {
		if !found[c] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	cp := *p
	cp.ExerciseIDs = append([]string(nil), p.ExerciseIDs...)
	if p.LastCompletedAt != nil {
		at := *p.LastCompletedAt
		cp.LastCompletedAt = &at
	}
	return &cp
}

// PlanRepository persists training plans.
type PlanRepository interface {
	List(ctx context.Context, userID string) ([]*Plan, error)
	Get(ctx context.Context, userID, planID string) (*Plan, error)

	// Create inserts a plan and reports whether it is the user's first one.
	Create(ctx context.Context, p *Plan) (first bool, err error)

	Save(ctx context.Context, p *Plan) error
	Delete(ctx context.Context, userID, planID string) error
}
