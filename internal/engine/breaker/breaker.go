// Package breaker implements per-resource circuit breaking.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/failsafe/internal/engine/metrics"
)

// ErrCircuitOpen is returned by Allow while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	Threshold   int
	OpenTimeout time.Duration
}

// DefaultConfig returns the defaults used when config omits breaker settings.
func DefaultConfig() Config {
	return Config{Threshold: 5, OpenTimeout: 30 * time.Second}
}

// Breaker is the state machine for one logical resource.
type Breaker struct {
	mu          sync.Mutex
	resource    string
	threshold   int
	openTimeout time.Duration
	failures    int
	lastFailure time.Time
	state       State
	trial       bool
	now         func() time.Time
}

// NewBreaker creates a closed breaker for the resource.
func NewBreaker(resource string, cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}
	return &Breaker{
		resource:    resource,
		threshold:   cfg.Threshold,
		openTimeout: cfg.OpenTimeout,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. While open it fails fast with
// ErrCircuitOpen until the open timeout elapses, then lets exactly one
// trial call through in half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		// The trial slot is taken until its outcome is recorded.
		if b.trial {
			return fmt.Errorf("%w: resource %s", ErrCircuitOpen, b.resource)
		}
		b.trial = true
		return nil
	}

	if b.now().Sub(b.lastFailure) > b.openTimeout {
		b.setState(StateHalfOpen)
		b.trial = true
		return nil
	}
	return fmt.Errorf("%w: resource %s", ErrCircuitOpen, b.resource)
}

// RecordSuccess resets the breaker to closed from any state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trial = false
	b.setState(StateClosed)
}

// RecordFailure counts a failure and opens the breaker once consecutive
// failures reach the threshold. A half-open trial failure reopens
// immediately. Returns true when this failure opened the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	b.trial = false

	if b.state == StateHalfOpen {
		b.setState(StateOpen)
		return true
	}
	if b.state == StateClosed && b.failures >= b.threshold {
		b.setState(StateOpen)
		return true
	}
	return false
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// setState must be called with the lock held.
func (b *Breaker) setState(s State) {
	b.state = s
	metrics.BreakerState.WithLabelValues(b.resource).Set(float64(s))
}
