package persistence

import (
	"context"
	"sync"
	"time"
)

type lockoutEntry struct {
	count   int64
	expires time.Time
}

// MemoryLockout is an in-process failed-login counter with the same window
// semantics as the Redis implementation.
type MemoryLockout struct {
	mu      sync.Mutex
	entries map[string]lockoutEntry
	now     func() time.Time
}

// NewMemoryLockout returns an empty counter.
func NewMemoryLockout() *MemoryLockout {
	return &MemoryLockout{entries: make(map[string]lockoutEntry), now: time.Now}
}

func (m *MemoryLockout) Failures(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		return 0, nil
	}
	return e.count, nil
}

func (m *MemoryLockout) RecordFailure(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.expires) {
		e = lockoutEntry{expires: now.Add(window)}
	}
	e.count++
	m.entries[key] = e
	return e.count, nil
}

func (m *MemoryLockout) ResetFailures(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
