package coach

import (
	"context"

	"github.com/selfdev-app/selfdev/internal/domain/coach"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// Disabled is used when no provider is configured. Every call fails with
// shared.ErrCoachUnavailable, so progression for the first turn still runs.
type Disabled struct{}

var _ coach.Client = Disabled{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) SendPrompt(context.Context, string, coach.Conversation) (string, error) {
	return "", shared.ErrCoachUnavailable
}
