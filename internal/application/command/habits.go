package command

import (
	"context"
	"fmt"

	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreateHabitCommand adds a habit.
type CreateHabitCommand struct {
	UserID string `validate:"required,userid"`
	Name   string `validate:"required,max=120"`
}

// RenameHabitCommand changes a habit's name.
type RenameHabitCommand struct {
	UserID  string `validate:"required,userid"`
	HabitID string `validate:"required"`
	Name    string `validate:"required,max=120"`
}

// ToggleHabitCommand flips today's completion.
type ToggleHabitCommand struct {
	UserID  string `validate:"required,userid"`
	HabitID string `validate:"required"`
}

// DeleteHabitCommand removes a habit.
type DeleteHabitCommand struct {
	UserID  string `validate:"required,userid"`
	HabitID string `validate:"required"`
}

// HabitResult is returned by habit commands that touch progression.
type HabitResult struct {
	Habit    *habit.Habit  `json:"habit,omitempty"`
	Progress engine.Result `json:"progress"`
}

// HabitHandler executes habit commands.
type HabitHandler struct {
	engines *engine.Registry
	habits  habit.Repository
	env     Env
}

// NewHabitHandler creates a new HabitHandler.
func NewHabitHandler(engines *engine.Registry, habits habit.Repository, env Env) *HabitHandler {
	return &HabitHandler{engines: engines, habits: habits, env: env.withDefaults()}
}

// Create stores a new habit and awards the creation reward. If the reward
// cannot be stored the habit is removed again.
func (h *HabitHandler) Create(ctx context.Context, cmd CreateHabitCommand) (*HabitResult, error) {
	if err := validateCommand("habit", "Create", cmd); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}

	hb, err := habit.New(h.env.NewID(), cmd.UserID, cmd.Name, h.env.Clock.Now())
	if err != nil {
		return nil, err
	}
	first, err := h.habits.Create(ctx, hb)
	if err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}

	res, err := eng.EvaluateItemCreated(ctx, engine.ItemHabit, first, false)
	if err != nil {
		if derr := h.habits.Delete(context.WithoutCancel(ctx), cmd.UserID, hb.ID); derr != nil {
			h.env.Logger.Error("failed to remove habit after rejected reward",
				logger.UserID(cmd.UserID), logger.HabitID(hb.ID), logger.Err(derr))
		}
		return &HabitResult{Progress: res}, err
	}

	h.env.publish(shared.NewHabitChangedEvent(cmd.UserID, hb.ID, "create"))
	return &HabitResult{Habit: hb, Progress: res}, nil
}

// Rename changes the display name. Progression is not affected.
func (h *HabitHandler) Rename(ctx context.Context, cmd RenameHabitCommand) (*habit.Habit, error) {
	if err := validateCommand("habit", "Rename", cmd); err != nil {
		return nil, err
	}

	hb, err := h.habits.Get(ctx, cmd.UserID, cmd.HabitID)
	if err != nil {
		return nil, fmt.Errorf("rename habit: %w", err)
	}
	if err := hb.Rename(cmd.Name, h.env.Clock.Now()); err != nil {
		return nil, err
	}
	if err := h.habits.Save(ctx, hb); err != nil {
		return nil, fmt.Errorf("rename habit: %w", err)
	}

	h.env.publish(shared.NewHabitChangedEvent(cmd.UserID, hb.ID, "rename"))
	return hb, nil
}

// Toggle marks the habit done for today, or undoes today's completion.
func (h *HabitHandler) Toggle(ctx context.Context, cmd ToggleHabitCommand) (*HabitResult, error) {
	if err := validateCommand("habit", "Toggle", cmd); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}

	hb, err := h.habits.Get(ctx, cmd.UserID, cmd.HabitID)
	if err != nil {
		return nil, fmt.Errorf("toggle habit: %w", err)
	}

	// hb only identifies the habit; the engine toggles the stored copy.
	res, err := eng.EvaluateHabitToggle(ctx, hb, h.env.today())
	if err != nil {
		return &HabitResult{Habit: hb, Progress: res}, err
	}
	return &HabitResult{Habit: res.Habit, Progress: res}, nil
}

// Delete removes a habit. Points already earned are kept.
func (h *HabitHandler) Delete(ctx context.Context, cmd DeleteHabitCommand) error {
	if err := validateCommand("habit", "Delete", cmd); err != nil {
		return err
	}
	if err := h.habits.Delete(ctx, cmd.UserID, cmd.HabitID); err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	h.env.publish(shared.NewHabitChangedEvent(cmd.UserID, cmd.HabitID, "delete"))
	return nil
}
