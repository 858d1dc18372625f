package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/docdraft/docdraft/config"
	"github.com/docdraft/docdraft/gateway"
	"github.com/docdraft/docdraft/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "claude-3-5-haiku-20241022",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// Provider implements gateway.Provider for Claude
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK
func New(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if err := config.ValidateLLMConfig(cfg.APIKey, cfg.Model, cfg.Temperature, int(cfg.MaxTokens)); err != nil {
		return nil, err
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		config: cfg,
		client: anthropic.NewClient(options...),
	}, nil
}

// Name identifies the provider in logs and traces.
func (p *Provider) Name() string {
	return "claude/" + p.config.Model
}

// Generate implements gateway.Provider
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	// Claude takes system prompts separately from the conversation.
	var systemPrompts []string
	conversation := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleUser:
			conversation = append(conversation,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			conversation = append(conversation,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  conversation,
		MaxTokens: p.config.MaxTokens,
	}
	if len(systemPrompts) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(systemPrompts, "\n")},
		}
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var responseText string
	for _, content := range apiMessage.Content {
		if content.Type == "text" {
			responseText = content.Text
		}
	}

	return message.NewMessage(message.RoleAssistant, responseText), nil
}

// classifyError tags capacity-class API failures (429 rate limit, 529
// overloaded) so the gateway retries them.
func classifyError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429, 500, 529:
			return gateway.Overload(err)
		}
	}
	return fmt.Errorf("Claude API error: %w", err)
}
