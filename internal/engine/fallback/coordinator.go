package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/failsafe/internal/engine/events"
	"github.com/vietddude/failsafe/internal/engine/metrics"
)

// Coordinator tracks service health and activates fallback bindings for
// degraded dependencies. It enforces at most one active binding per
// service.
type Coordinator struct {
	services map[string]ServiceConfig
	checker  Checker
	handlers map[StrategyType]Handler
	bus      *events.Bus

	mu              sync.Mutex
	bindings        map[string]*Binding
	recommendations []string
}

// NewCoordinator creates a coordinator for the given services.
func NewCoordinator(services []ServiceConfig, checker Checker, bus *events.Bus) *Coordinator {
	svcMap := make(map[string]ServiceConfig, len(services))
	for _, svc := range services {
		if svc.Interval <= 0 {
			svc.Interval = 30 * time.Second
		}
		if svc.Timeout <= 0 {
			svc.Timeout = 5 * time.Second
		}
		svcMap[svc.Name] = svc
	}
	return &Coordinator{
		services: svcMap,
		checker:  checker,
		bus:      bus,
		handlers: map[StrategyType]Handler{
			StrategyMock:    NewMockHandler(),
			StrategyProxy:   NewProxyHandler(),
			StrategyCache:   NewCacheHandler(),
			StrategyDisable: NewDisableHandler(),
		},
		bindings: make(map[string]*Binding),
	}
}

// SetHandler overrides the handler for a strategy type. Intended for
// startup wiring (registering caller-supplied substitutes).
func (c *Coordinator) SetHandler(t StrategyType, h Handler) {
	c.handlers[t] = h
}

// CheckHealth probes the service and returns its status plus whether a
// fallback is currently active for it.
func (c *Coordinator) CheckHealth(ctx context.Context, name string) (CheckResult, error) {
	svc, ok := c.services[name]
	if !ok {
		return CheckResult{}, fmt.Errorf("unknown service: %s", name)
	}

	probeCtx, cancel := context.WithTimeout(ctx, svc.Timeout)
	defer cancel()

	start := time.Now()
	status, err := c.checker.Check(probeCtx, svc)
	latency := time.Since(start)
	if err != nil {
		slog.Debug("Health probe failed", "service", name, "error", err)
	}

	c.mu.Lock()
	_, active := c.bindings[name]
	c.mu.Unlock()

	return CheckResult{
		Service:   name,
		Status:    status,
		Latency:   latency,
		Fallback:  active,
		CheckedAt: start,
	}, nil
}

// Activate wires in the configured fallback for the service. Idempotent:
// activating an already-active service is a no-op.
func (c *Coordinator) Activate(ctx context.Context, name string) error {
	svc, ok := c.services[name]
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}

	c.mu.Lock()
	if _, active := c.bindings[name]; active {
		c.mu.Unlock()
		return nil
	}
	// Reserve the slot before releasing the lock so concurrent callers
	// cannot double-activate.
	c.bindings[name] = &Binding{Service: name, Strategy: svc.Strategy}
	c.mu.Unlock()

	handler, ok := c.handlers[svc.Strategy]
	if !ok {
		c.clearBinding(name)
		return fmt.Errorf("no handler for strategy %s", svc.Strategy)
	}

	cleanup, err := handler.Activate(ctx, svc)
	if err != nil {
		c.clearBinding(name)
		if svc.Required {
			return fmt.Errorf("fallback activation failed for required service %s: %w", name, err)
		}
		c.recommend(fmt.Sprintf("service %s degraded and fallback %s failed: %v", name, svc.Strategy, err))
		slog.Warn("Fallback activation failed for optional service",
			"service", name, "strategy", svc.Strategy, "error", err)
		return nil
	}

	c.mu.Lock()
	c.bindings[name].cleanup = cleanup
	c.bindings[name].ActivatedAt = time.Now()
	c.mu.Unlock()

	metrics.FallbackActive.WithLabelValues(name, string(svc.Strategy)).Set(1)
	slog.Info("Fallback activated", "service", name, "strategy", svc.Strategy)
	if c.bus != nil {
		c.bus.Publish(events.FallbackActivated{
			Service:   name,
			Strategy:  string(svc.Strategy),
			Timestamp: time.Now(),
		})
	}
	return nil
}

// Deactivate removes the service's binding, running its cleanup hook
// best-effort. Deactivating an inactive service is a no-op.
func (c *Coordinator) Deactivate(ctx context.Context, name string) error {
	c.mu.Lock()
	binding, active := c.bindings[name]
	delete(c.bindings, name)
	c.mu.Unlock()

	if !active {
		return nil
	}

	if binding.cleanup != nil {
		if err := binding.cleanup(ctx); err != nil {
			slog.Warn("Fallback cleanup failed", "service", name, "error", err)
		}
	}
	metrics.FallbackActive.WithLabelValues(name, string(binding.Strategy)).Set(0)
	slog.Info("Fallback deactivated", "service", name, "strategy", binding.Strategy)
	return nil
}

// ActiveBindings returns a snapshot of active bindings.
func (c *Coordinator) ActiveBindings() []Binding {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		out = append(out, *b)
	}
	return out
}

// Recommendations returns degradation notes recorded for non-required
// services.
func (c *Coordinator) Recommendations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.recommendations))
	copy(out, c.recommendations)
	return out
}

// Run polls every configured service until ctx is cancelled, activating
// fallbacks on Unhealthy/Offline and deactivating once the real service
// recovers.
func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for name := range c.services {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			c.poll(ctx, name)
		}(name)
	}
	wg.Wait()
}

func (c *Coordinator) poll(ctx context.Context, name string) {
	svc := c.services[name]
	ticker := time.NewTicker(svc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := c.CheckHealth(ctx, name)
			if err != nil {
				continue
			}
			switch result.Status {
			case StatusHealthy:
				if result.Fallback {
					if err := c.Deactivate(ctx, name); err != nil {
						slog.Warn("Failed to deactivate fallback", "service", name, "error", err)
					}
				}
			case StatusUnhealthy, StatusOffline:
				if !result.Fallback {
					if err := c.Activate(ctx, name); err != nil {
						slog.Error("Failed to activate fallback", "service", name, "error", err)
					}
				}
			}
		}
	}
}

func (c *Coordinator) clearBinding(name string) {
	c.mu.Lock()
	delete(c.bindings, name)
	c.mu.Unlock()
}

func (c *Coordinator) recommend(note string) {
	c.mu.Lock()
	c.recommendations = append(c.recommendations, note)
	c.mu.Unlock()
}
