package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/metrics"
	"github.com/vietddude/failsafe/internal/infra/storage"
)

// DefaultCapacity bounds the in-process failure history. Oldest events are
// evicted first when full.
const DefaultCapacity = 1000

// MaxCapacity is the hard upper bound for configured capacity.
const MaxCapacity = 5000

// FailureRepo is the bounded in-process storage.FailureRepository.
type FailureRepo struct {
	mu       sync.RWMutex
	capacity int
	events   []*domain.ErrorEvent // oldest first
	byID     map[string]*domain.ErrorEvent
}

// NewFailureRepo creates a repo with the given capacity (0 = default).
func NewFailureRepo(capacity int) *FailureRepo {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &FailureRepo{
		capacity: capacity,
		byID:     make(map[string]*domain.ErrorEvent),
	}
}

// Add stores the event, evicting the oldest when at capacity.
func (r *FailureRepo) Add(ctx context.Context, event *domain.ErrorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= r.capacity {
		evicted := r.events[0]
		r.events = r.events[1:]
		delete(r.byID, evicted.ID)
	}
	r.events = append(r.events, event)
	r.byID[event.ID] = event
	metrics.HistorySize.Set(float64(len(r.events)))
	return nil
}

// Update rewrites the stored event with the given one.
func (r *FailureRepo) Update(ctx context.Context, event *domain.ErrorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[event.ID]
	if !ok {
		return storage.ErrEventNotFound
	}
	*stored = *event
	return nil
}

// GetByID retrieves a single event.
func (r *FailureRepo) GetByID(ctx context.Context, id string) (*domain.ErrorEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.byID[id]
	if !ok {
		return nil, storage.ErrEventNotFound
	}
	cp := *event
	return &cp, nil
}

// ListRecent returns up to limit events, newest first.
func (r *FailureRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ErrorEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]*domain.ErrorEvent, 0, limit)
	for i := len(r.events) - 1; i >= len(r.events)-limit; i-- {
		cp := *r.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

// CountByKind returns failure counts grouped by kind.
func (r *FailureRepo) CountByKind(ctx context.Context) (map[domain.ErrorKind]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.ErrorKind]int)
	for _, e := range r.events {
		out[e.Kind]++
	}
	return out, nil
}

// Count returns the number of retained events.
func (r *FailureRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events), nil
}

// DeleteOlderThan removes events recorded before the cutoff.
func (r *FailureRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			delete(r.byID, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	metrics.HistorySize.Set(float64(len(r.events)))
	return nil
}

// Clear removes all events.
func (r *FailureRepo) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
	r.byID = make(map[string]*domain.ErrorEvent)
	metrics.HistorySize.Set(0)
	return nil
}
