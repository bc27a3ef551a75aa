package strategy

import (
	"context"
	"sync"
	"time"
)

// CooldownStore tracks the last invocation time per (strategy, resource)
// key. TryAcquire must be atomic: of two concurrent callers with the same
// key, at most one may win the claim.
type CooldownStore interface {
	// TryAcquire claims the key for the given cooldown window. Returns
	// false when the key was claimed within the window already.
	TryAcquire(ctx context.Context, key string, cooldown time.Duration) (bool, error)

	// Clear removes all claims (admin/reset path).
	Clear(ctx context.Context) error
}

// MemoryCooldowns is the in-process CooldownStore.
type MemoryCooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewMemoryCooldowns creates an empty in-process cooldown store.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// TryAcquire claims key unless it was claimed within the cooldown window.
func (m *MemoryCooldowns) TryAcquire(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if t, ok := m.last[key]; ok && now.Sub(t) < cooldown {
		return false, nil
	}
	m.last[key] = now
	return true, nil
}

// Clear removes all claims.
func (m *MemoryCooldowns) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = make(map[string]time.Time)
	return nil
}
