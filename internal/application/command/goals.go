package command

import (
	"context"
	"fmt"
	"time"

	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GOAL COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// GoalFields are the editable SMART fields.
type GoalFields struct {
	Name       string     `json:"name" validate:"required,max=200"`
	Specific   string     `json:"specific" validate:"max=2000"`
	Measurable string     `json:"measurable" validate:"max=2000"`
	Achievable string     `json:"achievable" validate:"max=2000"`
	Relevant   string     `json:"relevant" validate:"max=2000"`
	TimeBound  *time.Time `json:"time_bound,omitempty"`
}

func (f GoalFields) details() goal.Details {
	return goal.Details{
		Name:       f.Name,
		Specific:   f.Specific,
		Measurable: f.Measurable,
		Achievable: f.Achievable,
		Relevant:   f.Relevant,
		TimeBound:  f.TimeBound,
	}
}

// CreateGoalCommand adds a goal at 0%.
type CreateGoalCommand struct {
	UserID string `validate:"required,userid"`
	GoalFields
}

// EditGoalCommand replaces the SMART fields of a goal.
type EditGoalCommand struct {
	UserID string `validate:"required,userid"`
	GoalID string `validate:"required"`
	GoalFields
}

// UpdateGoalProgressCommand sets a goal's progress. Values outside 0..100
// are clamped.
type UpdateGoalProgressCommand struct {
	UserID   string `validate:"required,userid"`
	GoalID   string `validate:"required"`
	Progress int
}

// DeleteGoalCommand removes a goal.
type DeleteGoalCommand struct {
	UserID string `validate:"required,userid"`
	GoalID string `validate:"required"`
}

// GoalResult is returned by goal commands that touch progression.
type GoalResult struct {
	Goal     *goal.Goal    `json:"goal,omitempty"`
	Progress engine.Result `json:"progress"`
}

// GoalHandler executes goal commands.
type GoalHandler struct {
	engines *engine.Registry
	goals   goal.Repository
	env     Env
}

// NewGoalHandler creates a new GoalHandler.
func NewGoalHandler(engines *engine.Registry, goals goal.Repository, env Env) *GoalHandler {
	return &GoalHandler{engines: engines, goals: goals, env: env.withDefaults()}
}

// Create stores a new goal and awards the creation reward.
func (h *GoalHandler) Create(ctx context.Context, cmd CreateGoalCommand) (*GoalResult, error) {
	if err := validateCommand("goal", "Create", cmd); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}

	g, err := goal.New(h.env.NewID(), cmd.UserID, cmd.details(), h.env.Clock.Now())
	if err != nil {
		return nil, err
	}
	first, err := h.goals.Create(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}

	res, err := eng.EvaluateItemCreated(ctx, engine.ItemGoal, first, false)
	if err != nil {
		if derr := h.goals.Delete(context.WithoutCancel(ctx), cmd.UserID, g.ID); derr != nil {
			h.env.Logger.Error("failed to remove goal after rejected reward",
				logger.UserID(cmd.UserID), logger.String("goal_id", g.ID), logger.Err(derr))
		}
		return &GoalResult{Progress: res}, err
	}
	return &GoalResult{Goal: g, Progress: res}, nil
}

// Edit replaces the SMART fields. Progress and status are kept.
func (h *GoalHandler) Edit(ctx context.Context, cmd EditGoalCommand) (*goal.Goal, error) {
	if err := validateCommand("goal", "Edit", cmd); err != nil {
		return nil, err
	}

	g, err := h.goals.Get(ctx, cmd.UserID, cmd.GoalID)
	if err != nil {
		return nil, fmt.Errorf("edit goal: %w", err)
	}
	if err := g.Edit(cmd.details(), h.env.Clock.Now()); err != nil {
		return nil, err
	}
	if err := h.goals.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("edit goal: %w", err)
	}
	return g, nil
}

// UpdateProgress sets progress and rewards completion.
func (h *GoalHandler) UpdateProgress(ctx context.Context, cmd UpdateGoalProgressCommand) (*GoalResult, error) {
	if err := validateCommand("goal", "UpdateProgress", cmd); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}

	g, err := h.goals.Get(ctx, cmd.UserID, cmd.GoalID)
	if err != nil {
		return nil, fmt.Errorf("update goal progress: %w", err)
	}

	// The engine reloads the goal and the completed count under the user's slot.
	res, err := eng.EvaluateGoalProgress(ctx, g, cmd.Progress, 0)
	if err != nil {
		return &GoalResult{Goal: g, Progress: res}, err
	}
	return &GoalResult{Goal: res.Goal, Progress: res}, nil
}

// Delete removes a goal. Points already earned are kept.
func (h *GoalHandler) Delete(ctx context.Context, cmd DeleteGoalCommand) error {
	if err := validateCommand("goal", "Delete", cmd); err != nil {
		return err
	}
	if err := h.goals.Delete(ctx, cmd.UserID, cmd.GoalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}
