package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
)

var (
	// ErrEventNotFound is returned when a failure event doesn't exist
	ErrEventNotFound = errors.New("error event not found")
)

// FailureRepository persists failure events for diagnostics and reporting.
type FailureRepository interface {
	// Add stores a new failure event
	Add(ctx context.Context, event *domain.ErrorEvent) error

	// Update rewrites the mutable fields (recovered flag, actions, status)
	Update(ctx context.Context, event *domain.ErrorEvent) error

	// GetByID retrieves a single event
	GetByID(ctx context.Context, id string) (*domain.ErrorEvent, error)

	// ListRecent returns up to limit events, newest first
	ListRecent(ctx context.Context, limit int) ([]*domain.ErrorEvent, error)

	// CountByKind returns failure counts grouped by kind
	CountByKind(ctx context.Context) (map[domain.ErrorKind]int, error)

	// Count returns the number of retained events
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan removes events recorded before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error

	// Clear removes all events (admin path)
	Clear(ctx context.Context) error
}
