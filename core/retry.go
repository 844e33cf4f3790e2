package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/metrics"
)

// RetryPolicy bounds retries of single-object backend calls.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.Multiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the policy is exhausted. Only errors marked transient by the backend are
// retried; path, not-found and precondition errors return at once.
func withRetry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, op, key string, fn func() (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !backends.IsTransient(err) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		metrics.RetryAttemptsTotal.WithLabelValues(op).Inc()
		logger.Debug("Retrying backend call",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	metrics.ErrorsTotal.WithLabelValues("engine", "backend_unavailable").Inc()
	return zero, fmt.Errorf("%s %s failed after %d attempts: %w", op, key, attempts, lastErr)
}
