package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/breaker"
	"github.com/vietddude/failsafe/internal/engine/events"
)

// emaAlpha is the smoothing factor for the average-duration EMA.
const emaAlpha = 0.1

// Success-rate damping increments. The rate is a recency-weighted signal,
// not a true ratio: failures pull it down five times harder than successes
// pull it up.
const (
	successStep = 1.0
	failureStep = 5.0
)

// Outcome is one operation attempt result fed to the monitor.
type Outcome struct {
	Resource    string
	Stage       domain.Stage
	Kind        domain.ErrorKind
	Duration    time.Duration
	Success     bool
	Recoverable bool
	Recovered   bool
}

// Monitor aggregates outcomes from concurrent operations into a rolling
// snapshot and emits a HealthChanged event when the aggregate status
// crosses a threshold.
type Monitor struct {
	thresholds Thresholds
	interval   time.Duration
	breakers   *breaker.Registry
	required   []string
	bus        *events.Bus

	outcomes chan Outcome

	mu       sync.RWMutex
	snapshot Metrics

	// accumulators, owned by the run loop
	successRate   float64
	avgDurationMs float64
	byKind        map[domain.ErrorKind]int
	recoverable   int
	recovered     int
	trend         []float64
}

// NewMonitor creates a monitor. required lists resources whose open
// breaker forces critical status regardless of success rate.
func NewMonitor(
	thresholds Thresholds,
	interval time.Duration,
	breakers *breaker.Registry,
	required []string,
	bus *events.Bus,
) *Monitor {
	if thresholds.DegradedBelow == 0 {
		thresholds.DegradedBelow = DefaultThresholds().DegradedBelow
	}
	if thresholds.CriticalBelow == 0 {
		thresholds.CriticalBelow = DefaultThresholds().CriticalBelow
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		thresholds:  thresholds,
		interval:    interval,
		breakers:    breakers,
		required:    required,
		bus:         bus,
		outcomes:    make(chan Outcome, 256),
		successRate: 100,
		byKind:      make(map[domain.ErrorKind]int),
		snapshot:    Metrics{Status: StatusHealthy, SuccessRate: 100, RecoveryRate: 100},
	}
}

// Observe feeds an outcome to the monitor. Non-blocking: under sustained
// overload outcomes are dropped rather than stalling the orchestrator.
func (m *Monitor) Observe(o Outcome) {
	select {
	case m.outcomes <- o:
	default:
	}
}

// Snapshot returns the last computed metrics.
func (m *Monitor) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Run drives the aggregation loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-m.outcomes:
			m.apply(o)
		case <-ticker.C:
			m.recompute()
		}
	}
}

// apply folds one outcome into the accumulators.
func (m *Monitor) apply(o Outcome) {
	if o.Success {
		m.successRate += successStep
	} else {
		m.successRate -= failureStep
		m.byKind[o.Kind]++
		if o.Recoverable {
			m.recoverable++
			if o.Recovered {
				m.recovered++
			}
		}
	}
	if m.successRate > 100 {
		m.successRate = 100
	}
	if m.successRate < 0 {
		m.successRate = 0
	}

	ms := float64(o.Duration.Milliseconds())
	if m.avgDurationMs == 0 {
		m.avgDurationMs = ms
	} else {
		m.avgDurationMs = emaAlpha*ms + (1-emaAlpha)*m.avgDurationMs
	}
}

// recompute publishes a fresh snapshot and fires HealthChanged on status
// transitions.
func (m *Monitor) recompute() {
	m.trend = append(m.trend, m.successRate)
	if len(m.trend) > trendSamples {
		m.trend = m.trend[1:]
	}

	recoveryRate := 100.0
	if m.recoverable > 0 {
		recoveryRate = 100 * float64(m.recovered) / float64(m.recoverable)
	}

	status := StatusHealthy
	switch {
	case m.successRate < m.thresholds.CriticalBelow:
		status = StatusCritical
	case m.successRate < m.thresholds.DegradedBelow:
		status = StatusDegraded
	}

	var openResource string
	if m.breakers != nil {
		if name, open := m.breakers.AnyOpen(m.required); open {
			status = StatusCritical
			openResource = name
		}
	}

	byKind := make(map[string]int, len(m.byKind))
	for k, v := range m.byKind {
		byKind[string(k)] = v
	}
	trend := make([]float64, len(m.trend))
	copy(trend, m.trend)

	m.mu.Lock()
	prev := m.snapshot.Status
	m.snapshot = Metrics{
		Status:         status,
		SuccessRate:    m.successRate,
		AvgDuration:    m.avgDurationMs,
		FailuresByKind: byKind,
		RecoveryRate:   recoveryRate,
		Trend:          trend,
		OpenBreaker:    openResource,
	}
	m.mu.Unlock()

	if prev != status {
		slog.Info("Health status changed", "from", prev, "to", status,
			"success_rate", m.successRate, "open_breaker", openResource)
		if m.bus != nil {
			m.bus.Publish(events.HealthChanged{
				Previous:  string(prev),
				Current:   string(status),
				Timestamp: time.Now(),
			})
		}
	}

	// Recovery-rate window is trailing: reset counters each tick.
	m.recoverable = 0
	m.recovered = 0
}
