package locks

import (
	"context"
	"sync"
)

// LocalManager provides in-process locking for single-node deployments of the
// localfs backend.
type LocalManager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalManager creates a new in-memory lock manager.
func NewLocalManager() *LocalManager {
	return &LocalManager{
		held: make(map[string]struct{}),
	}
}

// Acquire takes the lock for key if it is free.
func (m *LocalManager) Acquire(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return false, nil
	}
	m.held[key] = struct{}{}
	return true, nil
}

// Release drops the lock for key. Releasing must succeed even when ctx is
// already cancelled, otherwise the key would stay locked forever.
func (m *LocalManager) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

// Held returns the number of locks currently taken.
func (m *LocalManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Close drops every lock.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = make(map[string]struct{})
	return nil
}
