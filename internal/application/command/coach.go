package command

import (
	"context"
	"errors"
	"time"

	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/domain/coach"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COACH CHAT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SendCoachMessageCommand sends the conversation so far to the coach.
// The last entry must be the user's new message. With a reflection Context
// that message is replaced by the prepared prompt.
type SendCoachMessageCommand struct {
	UserID     string              `validate:"required,userid"`
	History    coach.Conversation  `validate:"min=1,dive"`
	Context    coach.PromptContext `validate:"omitempty,oneof=values lifegoals"`
	Reflection coach.Reflection
}

// CoachResult carries the reply and the updated conversation.
type CoachResult struct {
	Reply        string             `json:"reply,omitempty"`
	Conversation coach.Conversation `json:"conversation"`
	Progress     engine.Result      `json:"progress"`
}

// CoachConfig tunes the coach handler.
type CoachConfig struct {
	// Persona is sent as system instruction. Defaults to coach.DefaultPersona.
	Persona string

	// Timeout bounds one provider call.
	Timeout time.Duration
}

// CoachHandler executes coach chat turns.
type CoachHandler struct {
	engines *engine.Registry
	client  coach.Client
	cfg     CoachConfig
	env     Env
}

// NewCoachHandler creates a new CoachHandler.
func NewCoachHandler(engines *engine.Registry, client coach.Client, cfg CoachConfig, env Env) *CoachHandler {
	if cfg.Persona == "" {
		cfg.Persona = coach.DefaultPersona
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CoachHandler{engines: engines, client: client, cfg: cfg, env: env.withDefaults()}
}

// Send runs one chat turn.
//
// The first user turn of a conversation unlocks FIRST_COACH_CHAT even when
// the provider fails. A reply earns engine.CoachReplyPoints. Provider
// failures are returned after progression has been updated.
func (h *CoachHandler) Send(ctx context.Context, cmd SendCoachMessageCommand) (*CoachResult, error) {
	if err := validateCommand("coach", "Send", cmd); err != nil {
		return nil, err
	}

	conv := prepare(cmd)
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	eng, err := h.engines.For(cmd.UserID)
	if err != nil {
		return nil, err
	}
	firstTurn := conv.UserTurns() == 1
	log := h.env.Logger.With(logger.UserID(cmd.UserID), logger.String("provider", h.client.Name()))

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	start := time.Now()
	reply, callErr := h.client.SendPrompt(callCtx, h.cfg.Persona, conv)
	latency := time.Since(start)
	cancel()

	if callErr != nil {
		if errors.Is(callErr, context.DeadlineExceeded) && !shared.IsTimeout(callErr) {
			callErr = shared.WrapError("coach", "Send", shared.ErrTimeout, "coach request timed out", callErr)
		}
		log.Warn("coach call failed", logger.Latency(latency), logger.Err(callErr))

		res, err := eng.EvaluateCoachExchange(ctx, firstTurn, false)
		if err != nil {
			log.Error("failed to record coach exchange", logger.Err(err))
		}
		return &CoachResult{Conversation: conv, Progress: res}, callErr
	}

	conv = conv.Append(coach.Message{Role: coach.RoleModel, Text: reply})
	res, err := eng.EvaluateCoachExchange(ctx, firstTurn, true)
	h.env.publish(shared.NewCoachRepliedEvent(cmd.UserID, h.client.Name(), latency))
	log.Debug("coach replied", logger.Latency(latency))

	return &CoachResult{Reply: reply, Conversation: conv, Progress: res}, err
}

// prepare copies the history and applies the reflection prompt, if any.
func prepare(cmd SendCoachMessageCommand) coach.Conversation {
	conv := make(coach.Conversation, len(cmd.History))
	copy(conv, cmd.History)

	if cmd.Context == coach.ContextFree || len(conv) == 0 {
		return conv
	}
	last := len(conv) - 1
	if conv[last].Role == coach.RoleUser {
		conv[last].Text = coach.BuildPrompt(cmd.Context, conv[last].Text, cmd.Reflection)
	}
	return conv
}
