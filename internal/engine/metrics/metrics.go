package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attempts tracks operation attempts per resource and stage
	Attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failsafe_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"resource", "stage"},
	)

	// Failures tracks classified failures per kind
	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failsafe_failures_total",
			Help: "Total number of classified failures",
		},
		[]string{"resource", "kind"},
	)

	// RecoveryAttempts tracks recovery strategy invocations
	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failsafe_recovery_attempts_total",
			Help: "Total number of recovery strategy invocations",
		},
		[]string{"strategy", "kind"},
	)

	// RecoverySuccesses tracks recovery strategy successes
	RecoverySuccesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failsafe_recovery_successes_total",
			Help: "Total number of successful recovery strategy invocations",
		},
		[]string{"strategy", "kind"},
	)

	// OperationDuration tracks operation latency per resource
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "failsafe_operation_duration_seconds",
			Help:    "Operation execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "stage"},
	)

	// BreakerState tracks circuit breaker state per resource (0=closed, 1=open, 2=half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "failsafe_breaker_state",
			Help: "Circuit breaker state per resource (0=closed, 1=open, 2=half-open)",
		},
		[]string{"resource"},
	)

	// FallbackActive tracks active fallback bindings per service
	FallbackActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "failsafe_fallback_active",
			Help: "Whether a fallback binding is active for the service (1=active)",
		},
		[]string{"service", "strategy"},
	)

	// DroppedEvents tracks events dropped because a subscriber was full
	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failsafe_dropped_events_total",
			Help: "Total number of bus events dropped due to slow subscribers",
		},
		[]string{"type"},
	)

	// HistorySize tracks the number of retained failure events
	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "failsafe_history_size",
			Help: "Number of failure events currently retained",
		},
	)
)
