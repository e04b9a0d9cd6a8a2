package command

import (
	"context"

	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
)

// AwardPointsCommand adds or removes points manually.
type AwardPointsCommand struct {
	UserID string `validate:"required,userid"`
	Amount int    `validate:"ne=0"`
	Reason string `validate:"max=200"`
}

// AwardAchievementCommand unlocks an achievement manually.
type AwardAchievementCommand struct {
	UserID        string                    `validate:"required,userid"`
	AchievementID progression.AchievementID `validate:"required"`
}

// PointsHandler executes manual progression commands.
type PointsHandler struct {
	engines *engine.Registry
}

// NewPointsHandler creates a new PointsHandler.
func NewPointsHandler(engines *engine.Registry) *PointsHandler {
	return &PointsHandler{engines: engines}
}

// Award applies a manual point change.
func (h *PointsHandler) Award(ctx context.Context, cmd AwardPointsCommand) (engine.Result, error) {
	if err := validateCommand("progression", "AwardPoints", cmd); err != nil {
		return engine.Result{}, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return engine.Result{}, err
	}
	if cmd.Reason == "" {
		cmd.Reason = "manual"
	}
	return eng.AwardPoints(ctx, cmd.Amount, cmd.Reason)
}

// Unlock awards an achievement by id.
func (h *PointsHandler) Unlock(ctx context.Context, cmd AwardAchievementCommand) (engine.Result, error) {
	if err := validateCommand("progression", "AwardAchievement", cmd); err != nil {
		return engine.Result{}, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return engine.Result{}, err
	}
	return eng.AwardAchievement(ctx, cmd.AchievementID)
}
