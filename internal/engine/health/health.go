// Package health aggregates operation outcomes into rolling process-wide
// metrics and status reporting.
package health

// SystemStatus represents the overall health state of the engine.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// trendSamples is the fixed size of the success-rate trend ring.
const trendSamples = 10

// Metrics is the read-only snapshot exposed to callers.
type Metrics struct {
	Status         SystemStatus   `json:"status"`
	SuccessRate    float64        `json:"success_rate"` // damped signal in [0,100]
	AvgDuration    float64        `json:"avg_duration_ms"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	RecoveryRate   float64        `json:"recovery_rate"` // percent, 100 when nothing recoverable failed
	Trend          []float64      `json:"trend"`         // last success-rate samples, oldest first
	OpenBreaker    string         `json:"open_breaker,omitempty"`
}

// Thresholds configure when aggregate status degrades.
type Thresholds struct {
	DegradedBelow float64 // success rate, default 80
	CriticalBelow float64 // success rate, default 60
}

// DefaultThresholds returns the defaults used when config omits them.
func DefaultThresholds() Thresholds {
	return Thresholds{DegradedBelow: 80, CriticalBelow: 60}
}
