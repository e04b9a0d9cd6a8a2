package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/selfdev-app/selfdev/internal/domain/coach"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint. Empty uses the public one.
	BaseURL string

	Guard GuardConfig
}

// Gemini talks to the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	guard  *guard
}

var _ coach.Client = (*Gemini)(nil)

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig, log *logger.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, shared.Validation("coach", "NewGemini", "gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  cfg.Model,
		guard:  newGuard("gemini", cfg.Guard, log),
	}, nil
}

// Name implements coach.Client.
func (g *Gemini) Name() string { return "gemini" }

// SendPrompt implements coach.Client. The persona travels as the system
// instruction; model turns keep the "model" role.
func (g *Gemini) SendPrompt(ctx context.Context, persona string, history coach.Conversation) (string, error) {
	if err := history.Validate(); err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if m.Role == coach.RoleModel {
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleModel))
		} else {
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
		}
	}

	var cfg *genai.GenerateContentConfig
	if strings.TrimSpace(persona) != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(persona, genai.RoleUser),
		}
	}

	return g.guard.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", shared.NewDomainError("coach", "gemini", shared.ErrCoachUnavailable, "gemini returned no text")
		}
		return text, nil
	}, classifyGemini)
}

func classifyGemini(err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, err)
	}
	return shared.WrapError("coach", "gemini", shared.ErrCoachUnavailable, "gemini request failed", err)
}
