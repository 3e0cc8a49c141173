package store

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// ErrSerialization is returned by a store when the database aborted a transaction
// because it could not be serialized against a concurrent one. It is safe to retry.
var ErrSerialization = errors.New("transaction could not be serialized")

// RetryOption configures Retry.
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

// WithMaxAttempts sets the number of attempts, including the first one.
func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first backoff delay. Later delays double.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or attempts run out.
// Only ErrSerialization is retried. Delays are baseDelay * 2^(attempt-1) plus jitter.
func Retry(ctx context.Context, fn func(ctx context.Context) error, opts ...RetryOption) error {
	cfg := retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !errors.Is(lastErr, ErrSerialization) {
			return lastErr
		}
	}
	return lastErr
}
