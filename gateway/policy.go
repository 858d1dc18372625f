package gateway

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/docdraft/docdraft/config"
)

// OverloadError marks a provider failure as capacity-class: the request
// was valid but the model had no room for it. Providers wrap 429/503-style
// responses in this type so the gateway knows retrying is worthwhile.
type OverloadError struct {
	Err error
}

func (e *OverloadError) Error() string {
	if e.Err == nil {
		return "model overloaded"
	}
	return "model overloaded: " + e.Err.Error()
}

func (e *OverloadError) Unwrap() error { return e.Err }

// Overload wraps err as a capacity-class failure.
func Overload(err error) error {
	return &OverloadError{Err: err}
}

// IsOverload reports whether err is a capacity-class failure anywhere in
// its chain.
func IsOverload(err error) bool {
	var oe *OverloadError
	return errors.As(err, &oe)
}

// BackoffFunc maps a 1-based attempt number to the delay before the next
// attempt.
type BackoffFunc func(attempt int) time.Duration

// SleepFunc waits for the given duration or until ctx is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy describes one tier's retry behaviour: how many attempts to
// make and how long to wait between them. The same policy runs against
// the primary and then the fallback.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Sleep is overridable for tests; nil means a context-aware wait.
	Sleep SleepFunc
}

// DefaultRetryPolicy retries 3 times with 2^attempt seconds between
// attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(time.Second),
	}
}

// ExponentialBackoff returns unit * 2^attempt.
func ExponentialBackoff(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(2, float64(attempt))) * unit
	}
}

func (p RetryPolicy) validate() error {
	if err := config.ValidateRetryConfig(p.MaxAttempts); err != nil {
		return err
	}
	return nil
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
