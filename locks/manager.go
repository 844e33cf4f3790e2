// Package locks serializes compare-and-swap writes for backends that have no
// native conditional write, either within one process or across hosts via Redis.
package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/ebogdum/bucketfs/metrics"
)

// DefaultPollInterval is the delay between attempts to take a contended lock.
const DefaultPollInterval = 5 * time.Millisecond

// Manager defines the interface for locking operations
type Manager interface {
	// Acquire attempts to acquire a lock for the given key
	// Returns true if the lock was acquired, false if it is already held
	Acquire(ctx context.Context, key string) (bool, error)

	// Release releases a previously acquired lock for the given key
	// Only the owner that acquired the lock can release it
	Release(ctx context.Context, key string) error

	// Close closes the lock manager and releases any resources
	Close() error
}

// WithLock blocks until key is acquired or ctx is done, runs fn, and releases
// the lock on every exit path.
func WithLock(ctx context.Context, m Manager, key string, fn func() error) error {
	for {
		acquired, err := m.Acquire(ctx, key)
		if err != nil {
			metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if acquired {
			metrics.LockOperationsTotal.WithLabelValues("acquire", "success").Inc()
			break
		}
		metrics.LockOperationsTotal.WithLabelValues("acquire", "contended").Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(DefaultPollInterval):
		}
	}

	fnErr := fn()

	// Release with a fresh context so a cancelled caller does not leak the lock.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Release(releaseCtx, key); err != nil {
		metrics.LockOperationsTotal.WithLabelValues("release", "failure").Inc()
		if fnErr == nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
	} else {
		metrics.LockOperationsTotal.WithLabelValues("release", "success").Inc()
	}

	return fnErr
}
