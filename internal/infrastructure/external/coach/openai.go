package coach

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/selfdev-app/selfdev/internal/domain/coach"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey string
	Model  string

	// BaseURL points at an OpenAI-compatible endpoint, e.g. a local proxy.
	BaseURL string

	Guard GuardConfig
}

// OpenAI talks to the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	guard  *guard
}

var _ coach.Client = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI client.
func NewOpenAI(cfg OpenAIConfig, log *logger.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, shared.Validation("coach", "NewOpenAI", "openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		guard:  newGuard("openai", cfg.Guard, log),
	}, nil
}

// Name implements coach.Client.
func (o *OpenAI) Name() string { return "openai" }

// SendPrompt implements coach.Client.
func (o *OpenAI) SendPrompt(ctx context.Context, persona string, history coach.Conversation) (string, error) {
	if err := history.Validate(); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toChatMessages(persona, history),
	}

	return o.guard.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", shared.NewDomainError("coach", "openai", shared.ErrCoachUnavailable, "openai returned no choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, classifyOpenAI)
}

func toChatMessages(persona string, history coach.Conversation) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if strings.TrimSpace(persona) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: persona})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == coach.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return msgs
}

func classifyOpenAI(err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, err)
	}
	return shared.WrapError("coach", "openai", shared.ErrCoachUnavailable, "openai request failed", err)
}
