// Package fallback manages substitute implementations for degraded
// external dependencies.
package fallback

import (
	"context"
	"time"
)

// Status is the result of a service health probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy" // reachable but failing
	StatusOffline   Status = "offline"   // unreachable
)

// StrategyType selects how a degraded service is substituted.
type StrategyType string

const (
	StrategyMock    StrategyType = "mock"    // swap in a substitute implementation
	StrategyProxy   StrategyType = "proxy"   // route through an alternate endpoint
	StrategyCache   StrategyType = "cache"   // serve from cached data
	StrategyDisable StrategyType = "disable" // mark unavailable, no substitution
)

// ServiceConfig describes one monitored external dependency.
type ServiceConfig struct {
	Name      string
	Required  bool
	Strategy  StrategyType
	CheckURL  string        // http(s):// or grpc:// target
	AltTarget string        // proxy strategy only
	Interval  time.Duration // poll interval, default 30s
	Timeout   time.Duration // probe timeout, default 5s
}

// Binding is an active fallback for one service. At most one per service.
type Binding struct {
	Service     string
	Strategy    StrategyType
	ActivatedAt time.Time
	cleanup     func(ctx context.Context) error
}

// CheckResult is returned by CheckServiceHealth.
type CheckResult struct {
	Service   string        `json:"service"`
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Fallback  bool          `json:"fallback_active"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Checker probes a service's real implementation.
type Checker interface {
	Check(ctx context.Context, svc ServiceConfig) (Status, error)
}

// Handler activates one fallback strategy type. The returned cleanup is
// invoked best-effort on deactivation.
type Handler interface {
	Activate(ctx context.Context, svc ServiceConfig) (cleanup func(ctx context.Context) error, err error)
}
