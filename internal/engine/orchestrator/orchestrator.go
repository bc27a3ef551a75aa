// Package orchestrator drives the attempt/backoff/recovery loop for
// logical operations.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/breaker"
	"github.com/vietddude/failsafe/internal/engine/classify"
	"github.com/vietddude/failsafe/internal/engine/events"
	"github.com/vietddude/failsafe/internal/engine/health"
	"github.com/vietddude/failsafe/internal/engine/metrics"
	"github.com/vietddude/failsafe/internal/engine/strategy"
	"github.com/vietddude/failsafe/internal/infra/storage"
)

// Operation is a caller-supplied callable, opaque to the engine. It should
// honor ctx cancellation; the engine stops awaiting it on timeout but
// never force-kills it.
type Operation func(ctx context.Context) (any, error)

// Observer receives the outcome of every attempt, independently of
// strategy execution.
type Observer interface {
	Observe(health.Outcome)
}

// Tracker is a pluggable external error sink.
type Tracker interface {
	TrackError(err error, execCtx *domain.ExecutionContext, meta map[string]string)
}

// ExhaustedSink receives operations the engine has given up on, for
// external retry tooling.
type ExhaustedSink interface {
	HandOff(ctx context.Context, event *domain.ErrorEvent) error
}

// Config holds retry timing parameters.
type Config struct {
	BackoffBase    time.Duration // default 1s
	BackoffCap     time.Duration // default 30s
	FixedDelay     time.Duration // non-recovery delay unit, default 500ms
	DefaultTimeout time.Duration // per-attempt guard, default 30s
	MaxRetries     int           // default when context omits it, 3
}

// DefaultConfig returns the defaults used when config omits retry settings.
func DefaultConfig() Config {
	return Config{
		BackoffBase:    time.Second,
		BackoffCap:     30 * time.Second,
		FixedDelay:     500 * time.Millisecond,
		DefaultTimeout: 30 * time.Second,
		MaxRetries:     3,
	}
}

// Orchestrator executes operations with classification, circuit breaking
// and strategy-driven recovery. One instance serves many concurrent
// callers.
type Orchestrator struct {
	cfg        Config
	classifier *classify.Classifier
	strategies *strategy.Registry
	breakers   *breaker.Registry
	observer   Observer
	tracker    Tracker
	bus        *events.Bus
	repo       storage.FailureRepository
	exhausted  ExhaustedSink
	blocking   *BlockingSet

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. observer, tracker, repo and exhausted may
// be nil; bus, classifier, strategies and breakers must not.
func New(
	cfg Config,
	classifier *classify.Classifier,
	strategies *strategy.Registry,
	breakers *breaker.Registry,
	observer Observer,
	bus *events.Bus,
	repo storage.FailureRepository,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.FixedDelay <= 0 {
		cfg.FixedDelay = def.FixedDelay
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		strategies: strategies,
		breakers:   breakers,
		observer:   observer,
		bus:        bus,
		repo:       repo,
		blocking:   NewBlockingSet(),
		sleep:      sleepCtx,
	}
}

// SetTracker wires an external error sink.
func (o *Orchestrator) SetTracker(t Tracker) { o.tracker = t }

// SetExhaustedSink wires the hand-off target for exhausted operations.
func (o *Orchestrator) SetExhaustedSink(s ExhaustedSink) { o.exhausted = s }

// Blocking returns the set of (stage, kind) combinations that abort the
// enclosing process on exhaustion.
func (o *Orchestrator) Blocking() *BlockingSet { return o.blocking }

// Execute runs the operation with recovery until success, exhaustion or a
// non-recoverable failure.
func (o *Orchestrator) Execute(ctx context.Context, execCtx *domain.ExecutionContext, op Operation) (any, error) {
	if execCtx.MaxRetries <= 0 {
		execCtx.MaxRetries = o.cfg.MaxRetries
	}
	if execCtx.Timeout <= 0 {
		execCtx.Timeout = o.cfg.DefaultTimeout
	}
	if execCtx.OperationID == "" {
		execCtx.OperationID = uuid.New().String()
	}

	brk := o.breakers.Get(execCtx.Resource)
	session := o.strategies.NewSession()

	// Every recovery action tried across attempts, for the terminal error.
	var actions []string
	var lastEvent *domain.ErrorEvent

	for {
		// Fail fast while the resource's breaker is open: the
		// operation is not invoked at all.
		if err := brk.Allow(); err != nil {
			return nil, o.circuitOpen(execCtx, lastEvent, actions, err)
		}

		metrics.Attempts.WithLabelValues(execCtx.Resource, string(execCtx.Stage)).Inc()

		start := time.Now()
		result, err := o.runGuarded(ctx, execCtx, op)
		duration := time.Since(start)
		metrics.OperationDuration.WithLabelValues(execCtx.Resource, string(execCtx.Stage)).
			Observe(duration.Seconds())

		if err == nil {
			brk.RecordSuccess()
			o.observe(health.Outcome{
				Resource: execCtx.Resource,
				Stage:    execCtx.Stage,
				Duration: duration,
				Success:  true,
			})
			return result, nil
		}

		execCtx.RetryCount++
		kind, severity := o.classifier.Classify(err, execCtx)
		event := o.recordFailure(ctx, execCtx, err, kind, severity, duration)
		lastEvent = event

		if opened := brk.RecordFailure(); opened {
			slog.Warn("Circuit opened", "resource", execCtx.Resource, "failures", brk.Failures())
			o.bus.Publish(events.CircuitOpened{
				Resource:  execCtx.Resource,
				Failures:  brk.Failures(),
				Timestamp: time.Now(),
			})
		}

		// Non-recoverable kinds propagate on the first attempt, no
		// strategy runs.
		if !kind.Recoverable() {
			o.observe(health.Outcome{
				Resource: execCtx.Resource,
				Stage:    execCtx.Stage,
				Kind:     kind,
				Duration: duration,
			})
			return nil, o.classified(event, actions, err)
		}

		if execCtx.RetryCount > execCtx.MaxRetries {
			return nil, o.exhaust(ctx, execCtx, event, actions, err, duration)
		}

		// The breaker may have opened on this very failure; no strategy
		// runs against a gated resource.
		if allowErr := brk.Allow(); allowErr != nil {
			o.observe(health.Outcome{
				Resource:    execCtx.Resource,
				Stage:       execCtx.Stage,
				Kind:        kind,
				Duration:    duration,
				Recoverable: true,
			})
			return nil, o.circuitOpen(execCtx, event, actions, allowErr)
		}

		recovered := session.Recover(ctx, event, execCtx, err)
		actions = append(actions, event.RecoveryActions...)
		o.updateEvent(ctx, event)
		o.observe(health.Outcome{
			Resource:    execCtx.Resource,
			Stage:       execCtx.Stage,
			Kind:        kind,
			Duration:    duration,
			Recoverable: true,
			Recovered:   recovered,
		})

		var delay time.Duration
		if recovered {
			o.bus.Publish(events.Recovered{
				OperationID: execCtx.OperationID,
				Resource:    execCtx.Resource,
				Strategy:    lastAction(event),
				Kind:        kind,
				Timestamp:   time.Now(),
			})
			delay = o.backoff(execCtx.RetryCount)
		} else {
			delay = time.Duration(execCtx.RetryCount) * o.cfg.FixedDelay
		}

		slog.Debug("Retrying operation",
			"operation", execCtx.OperationID, "resource", execCtx.Resource,
			"attempt", execCtx.RetryCount, "recovered", recovered, "delay", delay)

		if err := o.sleep(ctx, delay); err != nil {
			return nil, o.classified(event, actions, err)
		}
	}
}

// runGuarded executes one attempt under the timeout guard. On timeout the
// operation is no longer awaited; cooperative cancellation via ctx is the
// operation's responsibility.
func (o *Orchestrator) runGuarded(ctx context.Context, execCtx *domain.ExecutionContext, op Operation) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, execCtx.Timeout)
	defer cancel()

	type attemptResult struct {
		value any
		err   error
	}
	done := make(chan attemptResult, 1)

	go func() {
		value, err := op(attemptCtx)
		done <- attemptResult{value, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-attemptCtx.Done():
		return nil, domain.Tag(domain.KindTimeoutExceeded,
			fmt.Errorf("operation %s on %s: %w", execCtx.OperationID, execCtx.Resource, attemptCtx.Err()))
	}
}

// recordFailure creates and persists the ErrorEvent for one failed
// attempt and notifies the tracker and bus.
func (o *Orchestrator) recordFailure(
	ctx context.Context,
	execCtx *domain.ExecutionContext,
	cause error,
	kind domain.ErrorKind,
	severity domain.Severity,
	duration time.Duration,
) *domain.ErrorEvent {
	event := &domain.ErrorEvent{
		ID:          uuid.New().String(),
		Kind:        kind,
		Severity:    severity,
		Message:     cause.Error(),
		Context:     execCtx.Snapshot(),
		Timestamp:   time.Now(),
		Recoverable: kind.Recoverable(),
		Duration:    duration,
		Status:      domain.ErrorEventPending,
	}

	metrics.Failures.WithLabelValues(execCtx.Resource, string(kind)).Inc()

	if o.repo != nil {
		if err := o.repo.Add(ctx, event); err != nil {
			slog.Warn("Failed to persist error event", "id", event.ID, "error", err)
		}
	}
	if o.tracker != nil {
		o.tracker.TrackError(cause, execCtx, execCtx.Metadata)
	}
	o.bus.Publish(events.ErrorTracked{Event: *event, Timestamp: event.Timestamp})

	slog.Warn("Operation attempt failed",
		"operation", execCtx.OperationID, "resource", execCtx.Resource,
		"stage", execCtx.Stage, "kind", kind, "severity", severity,
		"attempt", execCtx.RetryCount, "error", cause)

	return event
}

// exhaust finishes an operation whose retries are spent.
func (o *Orchestrator) exhaust(
	ctx context.Context,
	execCtx *domain.ExecutionContext,
	event *domain.ErrorEvent,
	actions []string,
	cause error,
	duration time.Duration,
) error {
	o.observe(health.Outcome{
		Resource:    execCtx.Resource,
		Stage:       execCtx.Stage,
		Kind:        event.Kind,
		Duration:    duration,
		Recoverable: true,
	})

	if o.exhausted != nil {
		if err := o.exhausted.HandOff(ctx, event); err != nil {
			slog.Warn("Failed to hand off exhausted operation",
				"operation", execCtx.OperationID, "error", err)
		}
	}

	terminal := o.classified(event, actions, cause)

	if o.blocking.Blocking(execCtx.Stage, event.Kind) {
		slog.Error("Blocking failure exhausted retries, aborting",
			"operation", execCtx.OperationID, "resource", execCtx.Resource,
			"stage", execCtx.Stage, "kind", event.Kind)
		o.bus.Publish(events.Aborted{
			OperationID: execCtx.OperationID,
			Resource:    execCtx.Resource,
			Stage:       execCtx.Stage,
			Kind:        event.Kind,
			Timestamp:   time.Now(),
		})
		return fmt.Errorf("%w: %w", domain.ErrAborted, terminal)
	}
	return terminal
}

// classified builds the terminal error carrying the full diagnosis:
// kind, severity, attempt count and every recovery action tried across
// all attempts.
func (o *Orchestrator) classified(event *domain.ErrorEvent, actions []string, cause error) error {
	out := make([]string, len(actions))
	copy(out, actions)
	return &domain.ClassifiedError{
		Kind:            event.Kind,
		Severity:        event.Severity,
		Attempts:        event.Context.RetryCount,
		RecoveryActions: out,
		Err:             cause,
	}
}

// circuitOpen builds the fail-fast terminal error for a gated resource.
// The last failure seen by this execution supplies the diagnosis; absent
// one, the breaker was tripped elsewhere and the gate itself reads as a
// connection failure.
func (o *Orchestrator) circuitOpen(execCtx *domain.ExecutionContext, event *domain.ErrorEvent, actions []string, cause error) error {
	kind := domain.KindConnectionFailure
	severity := domain.SeverityHigh
	if event != nil {
		kind = event.Kind
		severity = event.Severity
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return &domain.ClassifiedError{
		Kind:            kind,
		Severity:        severity,
		Attempts:        execCtx.RetryCount,
		RecoveryActions: out,
		Err:             cause,
	}
}

func (o *Orchestrator) updateEvent(ctx context.Context, event *domain.ErrorEvent) {
	if o.repo == nil {
		return
	}
	if err := o.repo.Update(ctx, event); err != nil {
		slog.Warn("Failed to update error event", "id", event.ID, "error", err)
	}
}

func (o *Orchestrator) observe(outcome health.Outcome) {
	if o.observer != nil {
		o.observer.Observe(outcome)
	}
}

// backoff computes base * 2^(attempt-1), capped.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.cfg.BackoffCap {
			return o.cfg.BackoffCap
		}
	}
	if delay > o.cfg.BackoffCap {
		delay = o.cfg.BackoffCap
	}
	return delay
}

func lastAction(event *domain.ErrorEvent) string {
	if len(event.RecoveryActions) == 0 {
		return ""
	}
	return event.RecoveryActions[len(event.RecoveryActions)-1]
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
