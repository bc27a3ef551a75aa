package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Substitute is a caller-supplied replacement implementation for a mocked
// service. Health reports whether the substitute itself is usable.
type Substitute interface {
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// MockHandler swaps in caller-registered substitute implementations.
type MockHandler struct {
	mu          sync.Mutex
	substitutes map[string]Substitute
}

// NewMockHandler creates a handler with no substitutes registered.
func NewMockHandler() *MockHandler {
	return &MockHandler{substitutes: make(map[string]Substitute)}
}

// RegisterSubstitute binds a substitute implementation to a service name.
func (h *MockHandler) RegisterSubstitute(service string, sub Substitute) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.substitutes[service] = sub
}

// Activate verifies the substitute's own health check before handing it
// over. A mock that is itself broken is worse than no mock.
func (h *MockHandler) Activate(ctx context.Context, svc ServiceConfig) (func(ctx context.Context) error, error) {
	h.mu.Lock()
	sub, ok := h.substitutes[svc.Name]
	h.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no substitute registered for %s", svc.Name)
	}
	if err := sub.Health(ctx); err != nil {
		return nil, fmt.Errorf("substitute for %s failed its health check: %w", svc.Name, err)
	}
	return sub.Close, nil
}

// ProxyHandler routes traffic to the service's alternate target.
type ProxyHandler struct {
	mu      sync.Mutex
	targets map[string]string // service -> active alternate target
}

// NewProxyHandler creates an empty proxy handler.
func NewProxyHandler() *ProxyHandler {
	return &ProxyHandler{targets: make(map[string]string)}
}

// Activate records the alternate data path for the service.
func (h *ProxyHandler) Activate(ctx context.Context, svc ServiceConfig) (func(ctx context.Context) error, error) {
	if svc.AltTarget == "" {
		return nil, fmt.Errorf("proxy fallback for %s has no alt_target configured", svc.Name)
	}

	h.mu.Lock()
	h.targets[svc.Name] = svc.AltTarget
	h.mu.Unlock()

	cleanup := func(ctx context.Context) error {
		h.mu.Lock()
		delete(h.targets, svc.Name)
		h.mu.Unlock()
		return nil
	}
	return cleanup, nil
}

// Target returns the active alternate target for the service, if any.
func (h *ProxyHandler) Target(service string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.targets[service]
	return t, ok
}

// CacheHandler marks a service as served from cached data. Consumers
// check Serving before hitting the real dependency.
type CacheHandler struct {
	mu      sync.Mutex
	serving map[string]bool
}

// NewCacheHandler creates an empty cache handler.
func NewCacheHandler() *CacheHandler {
	return &CacheHandler{serving: make(map[string]bool)}
}

// Activate flags the service as cache-served.
func (h *CacheHandler) Activate(ctx context.Context, svc ServiceConfig) (func(ctx context.Context) error, error) {
	h.mu.Lock()
	h.serving[svc.Name] = true
	h.mu.Unlock()

	slog.Warn("Serving stale data from cache", "service", svc.Name)

	cleanup := func(ctx context.Context) error {
		h.mu.Lock()
		delete(h.serving, svc.Name)
		h.mu.Unlock()
		return nil
	}
	return cleanup, nil
}

// Serving reports whether the service is currently cache-served.
func (h *CacheHandler) Serving(service string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serving[service]
}

// DisableHandler marks a dependency unavailable without substitution.
type DisableHandler struct {
	mu       sync.Mutex
	disabled map[string]bool
}

// NewDisableHandler creates an empty disable handler.
func NewDisableHandler() *DisableHandler {
	return &DisableHandler{disabled: make(map[string]bool)}
}

// Activate flags the service as unavailable.
func (h *DisableHandler) Activate(ctx context.Context, svc ServiceConfig) (func(ctx context.Context) error, error) {
	h.mu.Lock()
	h.disabled[svc.Name] = true
	h.mu.Unlock()

	cleanup := func(ctx context.Context) error {
		h.mu.Lock()
		delete(h.disabled, svc.Name)
		h.mu.Unlock()
		return nil
	}
	return cleanup, nil
}

// Disabled reports whether the service is currently marked unavailable.
func (h *DisableHandler) Disabled(service string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disabled[service]
}
