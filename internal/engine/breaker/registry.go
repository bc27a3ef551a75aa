package breaker

import "sync"

// Registry holds one breaker per logical resource, created lazily on first
// use. Breakers never block unrelated resources.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the resource, creating it when absent.
func (r *Registry) Get(resource string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[resource]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[resource]; ok {
		return b
	}
	b = NewBreaker(resource, r.cfg)
	r.breakers[resource] = b
	return b
}

// AnyOpen reports whether any of the given resources has an open breaker.
// Resources with no breaker yet count as closed.
func (r *Registry) AnyOpen(resources []string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range resources {
		if b, ok := r.breakers[name]; ok && b.State() == StateOpen {
			return name, true
		}
	}
	return "", false
}

// Reset closes every breaker and clears failure counts (admin path).
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.RecordSuccess()
	}
}
