package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/docdraft/docdraft/config"
	"github.com/docdraft/docdraft/gateway"
	"github.com/docdraft/docdraft/message"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}

// Provider implements gateway.Provider for OpenAI
type Provider struct {
	config *Config
	client openaisdk.Client
}

// New creates a new OpenAI provider using the official SDK
func New(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
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
		client: openaisdk.NewClient(options...),
	}, nil
}

// Name identifies the provider in logs and traces.
func (p *Provider) Name() string {
	return "openai/" + p.config.Model
}

// Generate implements gateway.Provider
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	openAIMessages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			openAIMessages = append(openAIMessages, openaisdk.SystemMessage(msg.Text()))
		case message.RoleUser:
			openAIMessages = append(openAIMessages, openaisdk.UserMessage(msg.Text()))
		case message.RoleAssistant:
			openAIMessages = append(openAIMessages, openaisdk.AssistantMessage(msg.Text()))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Messages: openAIMessages,
		Model:    openaisdk.ChatModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.config.MaxTokens)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	return message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content), nil
}

// classifyError tags capacity-class API failures so the gateway retries
// them and escalates everything else immediately.
func classifyError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429, 500, 503:
			return gateway.Overload(err)
		}
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
