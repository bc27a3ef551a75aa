// Package events provides the asynchronous pub/sub channel between the
// engine and external consumers.
package events

import (
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
)

// Type identifies an event family for subscription.
type Type string

const (
	TypeErrorTracked      Type = "error_tracked"
	TypeRecovered         Type = "recovered"
	TypeCircuitOpened     Type = "circuit_opened"
	TypeFallbackActivated Type = "fallback_activated"
	TypeHealthChanged     Type = "health_changed"
	TypeAborted           Type = "aborted"
)

// Event is a typed bus payload.
type Event interface {
	Type() Type
}

// ErrorTracked is published for every classified failure.
type ErrorTracked struct {
	Event     domain.ErrorEvent
	Timestamp time.Time
}

func (ErrorTracked) Type() Type { return TypeErrorTracked }

// Recovered is published when a recovery strategy succeeds.
type Recovered struct {
	OperationID string
	Resource    string
	Strategy    string
	Kind        domain.ErrorKind
	Timestamp   time.Time
}

func (Recovered) Type() Type { return TypeRecovered }

// CircuitOpened is published when a resource's breaker trips.
type CircuitOpened struct {
	Resource  string
	Failures  int
	Timestamp time.Time
}

func (CircuitOpened) Type() Type { return TypeCircuitOpened }

// FallbackActivated is published when a substitute implementation is wired
// in for a degraded service.
type FallbackActivated struct {
	Service   string
	Strategy  string
	Timestamp time.Time
}

func (FallbackActivated) Type() Type { return TypeFallbackActivated }

// HealthChanged is published when the aggregate status crosses a
// threshold.
type HealthChanged struct {
	Previous  string
	Current   string
	Timestamp time.Time
}

func (HealthChanged) Type() Type { return TypeHealthChanged }

// Aborted is published when a blocking failure exhausts its retries. It
// signals that the enclosing multi-stage process must stop.
type Aborted struct {
	OperationID string
	Resource    string
	Stage       domain.Stage
	Kind        domain.ErrorKind
	Timestamp   time.Time
}

func (Aborted) Type() Type { return TypeAborted }
