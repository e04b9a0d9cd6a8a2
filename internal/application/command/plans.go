package command

import (
	"context"
	"fmt"

	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING PLAN COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreatePlanCommand adds a training plan.
type CreatePlanCommand struct {
	UserID      string   `validate:"required,userid"`
	Name        string   `validate:"required,max=120"`
	ExerciseIDs []string `validate:"min=1,dive,required"`
}

// EditPlanCommand replaces name and exercises of a plan.
type EditPlanCommand struct {
	UserID      string   `validate:"required,userid"`
	PlanID      string   `validate:"required"`
	Name        string   `validate:"required,max=120"`
	ExerciseIDs []string `validate:"min=1,dive,required"`
}

// CompletePlanCommand records a finished training session.
type CompletePlanCommand struct {
	UserID string `validate:"required,userid"`
	PlanID string `validate:"required"`
}

// DeletePlanCommand removes a plan.
type DeletePlanCommand struct {
	UserID string `validate:"required,userid"`
	PlanID string `validate:"required"`
}

// PlanResult is returned by plan commands that touch progression.
type PlanResult struct {
	Plan     *training.Plan `json:"plan,omitempty"`
	Progress engine.Result  `json:"progress"`
}

// PlanHandler executes training plan commands.
type PlanHandler struct {
	engines   *engine.Registry
	plans     training.PlanRepository
	exercises training.ExerciseCatalog
	env       Env
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(engines *engine.Registry, plans training.PlanRepository, exercises training.ExerciseCatalog, env Env) *PlanHandler {
	return &PlanHandler{engines: engines, plans: plans, exercises: exercises, env: env.withDefaults()}
}

func (h *PlanHandler) catalog(ctx context.Context) (map[string]training.Exercise, error) {
	list, err := h.exercises.ListExercises(ctx)
	if err != nil {
		return nil, fmt.Errorf("load exercises: %w", err)
	}
	return training.IndexExercises(list), nil
}

// Create stores a plan and awards the creation reward, plus the multi
// category achievement when every category is covered.
func (h *PlanHandler) Create(ctx context.Context, cmd CreatePlanCommand) (*PlanResult, error) {
	if err := validateCommand("training", "CreatePlan", cmd); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}
	catalog, err := h.catalog(ctx)
	if err != nil {
		return nil, err
	}

	p, err := training.NewPlan(h.env.NewID(), cmd.UserID, cmd.Name, cmd.ExerciseIDs, catalog, h.env.Clock.Now())
	if err != nil {
		return nil, err
	}
	first, err := h.plans.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	res, err := eng.EvaluateItemCreated(ctx, engine.ItemPlan, first, p.CoversAllCategories(catalog))
	if err != nil {
		if derr := h.plans.Delete(context.WithoutCancel(ctx), cmd.UserID, p.ID); derr != nil {
			h.env.Logger.Error("failed to remove plan after rejected reward",
				logger.UserID(cmd.UserID), logger.String("plan_id", p.ID), logger.Err(derr))
		}
		return &PlanResult{Progress: res}, err
	}
	return &PlanResult{Plan: p, Progress: res}, nil
}

// Edit replaces name and exercises.
func (h *PlanHandler) Edit(ctx context.Context, cmd EditPlanCommand) (*training.Plan, error) {
	if err := validateCommand("training", "EditPlan", cmd); err != nil {
		return nil, err
	}
	catalog, err := h.catalog(ctx)
	if err != nil {
		return nil, err
	}

	p, err := h.plans.Get(ctx, cmd.UserID, cmd.PlanID)
	if err != nil {
		return nil, fmt.Errorf("edit plan: %w", err)
	}
	if err := p.Edit(cmd.Name, cmd.ExerciseIDs, catalog, h.env.Clock.Now()); err != nil {
		return nil, err
	}
	if err := h.plans.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("edit plan: %w", err)
	}
	return p, nil
}

// Complete rewards a finished session. It can be repeated.
func (h *PlanHandler) Complete(ctx context.Context, cmd CompletePlanCommand) (*PlanResult, error) {
	if err := validateCommand("training", "CompletePlan", cmd); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}

	p, err := h.plans.Get(ctx, cmd.UserID, cmd.PlanID)
	if err != nil {
		return nil, fmt.Errorf("complete plan: %w", err)
	}

	res, err := eng.EvaluatePlanCompleted(ctx, p)
	if err != nil {
		return &PlanResult{Plan: p, Progress: res}, err
	}
	return &PlanResult{Plan: res.Plan, Progress: res}, nil
}

// Delete removes a plan.
func (h *PlanHandler) Delete(ctx context.Context, cmd DeletePlanCommand) error {
	if err := validateCommand("training", "DeletePlan", cmd); err != nil {
		return err
	}
	if err := h.plans.Delete(ctx, cmd.UserID, cmd.PlanID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}
