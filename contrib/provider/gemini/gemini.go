package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/docdraft/docdraft/config"
	"github.com/docdraft/docdraft/gateway"
	"github.com/docdraft/docdraft/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements gateway.Provider for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider using the official SDK
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if err := config.ValidateLLMConfig(cfg.APIKey, cfg.Model, float64(cfg.Temperature), int(cfg.MaxTokens)); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{config: cfg, client: client}, nil
}

// Name identifies the provider in logs and traces.
func (p *Provider) Name() string {
	return "gemini/" + p.config.Model
}

// Generate implements gateway.Provider
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	model := p.client.GenerativeModel(p.config.Model)
	model.SetMaxOutputTokens(p.config.MaxTokens)
	model.SetTemperature(p.config.Temperature)

	// Gemini has no separate system role in the request body; system
	// instructions travel on the model handle, the rest as history.
	var systemParts []genai.Part
	var history []*genai.Content
	var last genai.Part
	for i, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			systemParts = append(systemParts, genai.Text(msg.Content))
		case message.RoleUser, message.RoleAssistant:
			role := "user"
			if msg.Role == message.RoleAssistant {
				role = "model"
			}
			if i == len(messages)-1 {
				last = genai.Text(msg.Content)
				continue
			}
			history = append(history, &genai.Content{
				Role:  role,
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	if len(systemParts) > 0 {
		model.SystemInstruction = &genai.Content{Parts: systemParts}
	}
	if last == nil {
		return nil, fmt.Errorf("conversation has no user message")
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}

	var responseText string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText += string(text)
		}
	}

	return message.NewMessage(message.RoleAssistant, responseText), nil
}

// classifyError tags capacity-class API failures so the gateway retries
// them.
func classifyError(err error) error {
	var apierr *googleapi.Error
	if errors.As(err, &apierr) {
		switch apierr.Code {
		case 429, 500, 503:
			return gateway.Overload(err)
		}
	}
	return fmt.Errorf("Gemini API error: %w", err)
}
