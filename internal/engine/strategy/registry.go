package strategy

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/metrics"
)

// Registry holds registered recovery strategies and runs them against
// failures in priority order.
type Registry struct {
	mu         sync.RWMutex
	strategies []*RecoveryStrategy
	cooldowns  CooldownStore
}

// NewRegistry creates a registry backed by the given cooldown store.
func NewRegistry(cooldowns CooldownStore) *Registry {
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	return &Registry{cooldowns: cooldowns}
}

// Register adds a strategy. Intended for startup; strategies are never
// removed.
func (r *Registry) Register(s *RecoveryStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, s)
}

// Select returns strategies applicable to (kind, stage), sorted ascending
// by priority.
func (r *Registry) Select(kind domain.ErrorKind, stage domain.Stage) []*RecoveryStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*RecoveryStrategy
	for _, s := range r.strategies {
		if s.Applicable(kind, stage) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Recover runs eligible strategies against the failure until one reports
// success, using a fresh one-shot session. Callers retrying the same
// operation should hold a Session so MaxAttempts is enforced across
// retries.
func (r *Registry) Recover(
	ctx context.Context,
	event *domain.ErrorEvent,
	execCtx *domain.ExecutionContext,
	cause error,
) bool {
	return r.NewSession().Recover(ctx, event, execCtx, cause)
}

// Session tracks how often each strategy has run for a single operation,
// bounding it by the strategy's MaxAttempts. Not safe for concurrent use;
// one session belongs to one operation execution.
type Session struct {
	reg  *Registry
	runs map[string]int
}

// NewSession creates a per-operation session.
func (r *Registry) NewSession() *Session {
	return &Session{reg: r, runs: make(map[string]int)}
}

// Recover runs eligible strategies against the failure until one reports
// success. Strategies on cooldown or past their attempt limit are skipped
// without consuming an attempt slot. Returns true when a strategy
// succeeded; the event records every action tried.
func (se *Session) Recover(
	ctx context.Context,
	event *domain.ErrorEvent,
	execCtx *domain.ExecutionContext,
	cause error,
) bool {
	r := se.reg
	for _, s := range r.Select(event.Kind, execCtx.Stage) {
		if s.MaxAttempts > 0 && se.runs[s.Name] >= s.MaxAttempts {
			slog.Debug("Strategy attempt limit reached",
				"strategy", s.Name, "resource", execCtx.Resource)
			continue
		}

		key := s.Name + ":" + execCtx.Resource

		ok, err := r.cooldowns.TryAcquire(ctx, key, s.Cooldown)
		if err != nil {
			slog.Warn("Cooldown store unavailable, skipping strategy",
				"strategy", s.Name, "resource", execCtx.Resource, "error", err)
			continue
		}
		if !ok {
			slog.Debug("Strategy on cooldown",
				"strategy", s.Name, "resource", execCtx.Resource)
			continue
		}

		se.runs[s.Name]++
		event.RecordAttempt(s.Name)
		metrics.RecoveryAttempts.WithLabelValues(s.Name, string(event.Kind)).Inc()

		if r.runAction(ctx, s, execCtx, cause) {
			event.Recovered = true
			event.Status = domain.ErrorEventResolved
			metrics.RecoverySuccesses.WithLabelValues(s.Name, string(event.Kind)).Inc()
			slog.Info("Recovery strategy succeeded",
				"strategy", s.Name, "resource", execCtx.Resource, "kind", event.Kind)
			return true
		}

		slog.Warn("Recovery strategy failed",
			"strategy", s.Name, "resource", execCtx.Resource, "kind", event.Kind)
	}
	return false
}

// runAction invokes the strategy action, converting a panic into failure.
func (r *Registry) runAction(
	ctx context.Context,
	s *RecoveryStrategy,
	execCtx *domain.ExecutionContext,
	cause error,
) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Recovery strategy panicked",
				"strategy", s.Name, "panic", rec)
			ok = false
		}
	}()
	return s.Action(ctx, execCtx, cause)
}
