package memory

import (
	"context"
	"slices"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

// Goals returns a goal.Repository view of the store.
func (s *Store) Goals() goal.Repository { return goalRepo{s} }

// Plans returns a training.PlanRepository view of the store.
func (s *Store) Plans() training.PlanRepository { return planRepo{s} }

// ListExercises implements training.ExerciseCatalog.
func (s *Store) ListExercises(_ context.Context) ([]training.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.exercises), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOALS
// ══════════════════════════════════════════════════════════════════════════════

type goalRepo struct{ s *Store }

func (r goalRepo) List(_ context.Context, userID string) ([]*goal.Goal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*goal.Goal, 0, len(r.s.goals[userID]))
	for _, g := range r.s.goals[userID] {
		out = append(out, g.Clone())
	}
	return out, nil
}

func (r goalRepo) Get(_ context.Context, userID, goalID string) (*goal.Goal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, g := range r.s.goals[userID] {
		if g.ID == goalID {
			return g.Clone(), nil
		}
	}
	return nil, shared.ErrGoalNotFound
}

func (r goalRepo) Create(_ context.Context, g *goal.Goal) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.goals[g.UserID] = append(r.s.goals[g.UserID], g.Clone())
	return len(r.s.goals[g.UserID]) == 1, nil
}

func (r goalRepo) Save(_ context.Context, g *goal.Goal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := r.s.goals[g.UserID]
	idx := slices.IndexFunc(list, func(x *goal.Goal) bool { return x.ID == g.ID })
	if idx < 0 {
		return shared.ErrGoalNotFound
	}
	list[idx] = g.Clone()
	return nil
}

func (r goalRepo) Delete(_ context.Context, userID, goalID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := r.s.goals[userID]
	idx := slices.IndexFunc(list, func(x *goal.Goal) bool { return x.ID == goalID })
	if idx < 0 {
		return shared.ErrGoalNotFound
	}
	r.s.goals[userID] = slices.Delete(list, idx, idx+1)
	return nil
}

func (r goalRepo) CountCompleted(_ context.Context, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, g := range r.s.goals[userID] {
		if g.IsCompleted() {
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING PLANS
// ══════════════════════════════════════════════════════════════════════════════

type planRepo struct{ s *Store }

func (r planRepo) List(_ context.Context, userID string) ([]*training.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*training.Plan, 0, len(r.s.plans[userID]))
	for _, p := range r.s.plans[userID] {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (r planRepo) Get(_ context.Context, userID, planID string) (*training.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.plans[userID] {
		if p.ID == planID {
			return p.Clone(), nil
		}
	}
	return nil, shared.ErrPlanNotFound
}

func (r planRepo) Create(_ context.Context, p *training.Plan) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.plans[p.UserID] = append(r.s.plans[p.UserID], p.Clone())
	return len(r.s.plans[p.UserID]) == 1, nil
}

func (r planRepo) Save(_ context.Context, p *training.Plan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := r.s.plans[p.UserID]
	idx := slices.IndexFunc(list, func(x *training.Plan) bool { return x.ID == p.ID })
	if idx < 0 {
		return shared.ErrPlanNotFound
	}
	list[idx] = p.Clone()
	return nil
}

func (r planRepo) Delete(_ context.Context, userID, planID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := r.s.plans[userID]
	idx := slices.IndexFunc(list, func(x *training.Plan) bool { return x.ID == planID })
	if idx < 0 {
		return shared.ErrPlanNotFound
	}
	r.s.plans[userID] = slices.Delete(list, idx, idx+1)
	return nil
}
