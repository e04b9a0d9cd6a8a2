// Package coach contains the coach chat model and prompt builders.
// Transport to an LLM provider lives behind the Client interface.
package coach

import (
	"context"
	"strings"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// Role of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// IsValid checks that the role is known.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleModel
}

// Message is one turn of a conversation.
type Message struct {
	Role Role   `json:"role" validate:"required,oneof=user model"`
	Text string `json:"text" validate:"required"`
}

// Conversation is an ordered list of turns. The persona is never part of it.
type Conversation []Message

// UserTurns counts the user's messages.
func (c Conversation) UserTurns() int {
	n := 0
	for _, m := range c {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Validate requires a non-empty history that ends with a user turn.
func (c Conversation) Validate() error {
	if len(c) == 0 || c[len(c)-1].Role != RoleUser || strings.TrimSpace(c[len(c)-1].Text) == "" {
		return shared.ErrEmptyConversation
	}
	for _, m := range c {
		if !m.Role.IsValid() {
			return shared.Validation("coach", "Validate", "unknown role "+string(m.Role))
		}
	}
	return nil
}

// Append returns a new conversation with msg at the end.
func (c Conversation) Append(msg Message) Conversation {
	out := make(Conversation, 0, len(c)+1)
	out = append(out, c...)
	return append(out, msg)
}

// Client sends a conversation to a language model and returns the reply text.
type Client interface {
	// SendPrompt returns the model's reply. persona is sent as a system
	// instruction. Failures are reported as ErrAPI or ErrTimeout domain errors.
	SendPrompt(ctx context.Context, persona string, history Conversation) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
