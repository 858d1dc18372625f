// Package gateway provides resilient access to generative models.
//
// A Gateway holds a high-quality primary provider and a faster fallback.
// Capacity-class failures are retried with exponential backoff against the
// primary; once that attempt sequence is exhausted the identical sequence
// runs against the fallback. Callers only ever see ErrModelUnavailable
// after both tiers fail, wrapped around the last observed provider error.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/message"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/pkg/telemetry"
)

// Provider is a single generative model endpoint.
type Provider interface {
	// Name identifies the provider in logs and traces.
	Name() string

	// Generate produces one assistant message for the conversation.
	Generate(ctx context.Context, messages []*message.Message) (*message.Message, error)
}

// Gateway invokes a primary provider with retry and escalates to a
// fallback provider before surfacing failure.
type Gateway struct {
	primary  Provider
	fallback Provider
	policy   RetryPolicy
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(g *Gateway) {
		g.policy = policy
	}
}

// WithLogger overrides the logger used by the gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a gateway over a primary and a fallback provider. The
// fallback may be nil, in which case only the primary tier runs.
func New(primary, fallback Provider, opts ...Option) (*Gateway, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary provider cannot be nil")
	}
	g := &Gateway{
		primary:  primary,
		fallback: fallback,
		policy:   DefaultRetryPolicy(),
		logger:   logging.WithComponent("gateway"),
		tracer:   otel.Tracer("docdraft/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.policy.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Invoke sends a single-prompt request and returns the response text.
func (g *Gateway) Invoke(ctx context.Context, prompt string) (string, error) {
	msg, err := g.InvokeMessages(ctx, []*message.Message{message.NewMessage(message.RoleUser, prompt)})
	if err != nil {
		return "", err
	}
	return msg.Text(), nil
}

// InvokeMessages runs the two-tier retry loop over a full conversation.
func (g *Gateway) InvokeMessages(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.invoke")
	var err error
	defer func() { telemetry.End(span, err) }()

	var msg *message.Message
	msg, err = g.invokeTier(ctx, g.primary, messages)
	if err == nil {
		span.SetAttributes(attribute.String("gateway.provider", g.primary.Name()))
		return msg, nil
	}
	lastErr := err

	if g.fallback != nil {
		g.logger.Warn("primary model exhausted, escalating to fallback",
			"primary", g.primary.Name(), "fallback", g.fallback.Name(), "error", lastErr)
		msg, err = g.invokeTier(ctx, g.fallback, messages)
		if err == nil {
			span.SetAttributes(attribute.String("gateway.provider", g.fallback.Name()))
			return msg, nil
		}
		lastErr = err
	}

	err = fmt.Errorf("%w: %v", kberrors.ErrModelUnavailable, lastErr)
	return nil, err
}

// invokeTier runs one provider's retry sequence. Only overload-class
// failures are retried; anything else aborts the sequence immediately.
func (g *Gateway) invokeTier(ctx context.Context, provider Provider, messages []*message.Message) (*message.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		msg, err := provider.Generate(ctx, messages)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if !IsOverload(err) {
			g.logger.Error("model call failed with non-retryable error",
				"provider", provider.Name(), "attempt", attempt, "error", err)
			return nil, err
		}
		if attempt == g.policy.MaxAttempts {
			break
		}

		delay := g.policy.Backoff(attempt)
		g.logger.Warn("model overloaded, backing off",
			"provider", provider.Name(), "attempt", attempt, "delay", delay)
		if err := g.policy.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
