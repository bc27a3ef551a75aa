package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/breaker"
	"github.com/vietddude/failsafe/internal/engine/classify"
	"github.com/vietddude/failsafe/internal/engine/events"
	"github.com/vietddude/failsafe/internal/engine/health"
	"github.com/vietddude/failsafe/internal/engine/strategy"
	"github.com/vietddude/failsafe/internal/infra/storage/memory"
)

// recordingObserver collects outcomes.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []health.Outcome
}

func (r *recordingObserver) Observe(o health.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

type fixture struct {
	orch     *Orchestrator
	breakers *breaker.Registry
	registry *strategy.Registry
	bus      *events.Bus
	observer *recordingObserver
	slept    *[]time.Duration
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	breakers := breaker.NewRegistry(breaker.Config{Threshold: 5, OpenTimeout: time.Minute})
	registry := strategy.NewRegistry(nil)
	observer := &recordingObserver{}
	repo := memory.NewFailureRepo(0)

	orch := New(cfg, classify.NewClassifier(), registry, breakers, observer, bus, repo)

	// Record delays instead of sleeping.
	slept := &[]time.Duration{}
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	return &fixture{orch: orch, breakers: breakers, registry: registry, bus: bus, observer: observer, slept: slept}
}

func execCtx(resource string, stage domain.Stage, maxRetries int) *domain.ExecutionContext {
	return &domain.ExecutionContext{
		OperationID: "op-1",
		Resource:    resource,
		Stage:       stage,
		MaxRetries:  maxRetries,
		Timeout:     time.Second,
	}
}

func TestExecute_SuccessFirstTry(t *testing.T) {
	f := newFixture(t, Config{})

	result, err := f.orch.Execute(context.Background(), execCtx("db", domain.StageTest, 3),
		func(ctx context.Context) (any, error) { return 42, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
}

func TestExecute_BoundedAttempts(t *testing.T) {
	f := newFixture(t, Config{})

	calls := 0
	lastErr := errors.New("final failure")
	_, err := f.orch.Execute(context.Background(), execCtx("db", domain.StageTest, 3),
		func(ctx context.Context) (any, error) {
			calls++
			if calls == 4 {
				return nil, lastErr
			}
			return nil, errors.New("earlier failure")
		})

	// maxRetries = 3 means exactly 4 attempts.
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}

	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected ClassifiedError, got %T", err)
	}
	if classified.Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", classified.Attempts)
	}
	if !errors.Is(err, lastErr) {
		t.Error("final error must wrap the last attempt's error")
	}
}

func TestExecute_NonRecoverableShortCircuit(t *testing.T) {
	f := newFixture(t, Config{})

	strategyCalled := false
	f.registry.Register(&strategy.RecoveryStrategy{
		Name: "should-not-run",
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			strategyCalled = true
			return true
		},
	})

	calls := 0
	_, err := f.orch.Execute(context.Background(), execCtx("scanner", domain.StageSecurity, 5),
		func(ctx context.Context) (any, error) {
			calls++
			return nil, domain.Tag(domain.KindSecurityVulnerability, errors.New("CVE found"))
		})

	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if strategyCalled {
		t.Error("no strategy may run for a non-recoverable kind")
	}

	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected ClassifiedError, got %T", err)
	}
	if classified.Kind != domain.KindSecurityVulnerability {
		t.Errorf("expected security kind, got %s", classified.Kind)
	}
	if classified.Severity != domain.SeverityCritical {
		t.Errorf("expected critical severity, got %s", classified.Severity)
	}
}

func TestExecute_RecoveryScenario(t *testing.T) {
	// Operation fails twice with a network error, succeeds on the 3rd
	// try after the reconnect strategy reports success.
	f := newFixture(t, Config{BackoffBase: 2 * time.Second})

	f.registry.Register(&strategy.RecoveryStrategy{
		Name:     "reconnect",
		Kinds:    domain.KindList{domain.KindConnectionFailure},
		Priority: 1,
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			return true
		},
	})

	calls := 0
	ctx := execCtx("db-main", domain.StageExternal, 3)
	result, err := f.orch.Execute(context.Background(), ctx,
		func(ctx context.Context) (any, error) {
			calls++
			if calls < 3 {
				return nil, domain.Tag(domain.KindConnectionFailure, errors.New("connection reset"))
			}
			return "ok", nil
		})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %v", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	// Two backoff delays: 2s, then 4s.
	if len(*f.slept) != 2 || (*f.slept)[0] != 2*time.Second || (*f.slept)[1] != 4*time.Second {
		t.Errorf("unexpected backoff delays: %v", *f.slept)
	}
}

func TestExecute_CircuitOpenFailsFast(t *testing.T) {
	f := newFixture(t, Config{})

	// Trip the breaker: threshold is 5.
	for i := 0; i < 5; i++ {
		f.breakers.Get("flaky").RecordFailure()
	}

	calls := 0
	_, err := f.orch.Execute(context.Background(), execCtx("flaky", domain.StageTest, 3),
		func(ctx context.Context) (any, error) {
			calls++
			return nil, errors.New("should not run")
		})

	if calls != 0 {
		t.Errorf("operation must not be invoked while the circuit is open, got %d calls", calls)
	}
	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Errorf("expected circuit open error, got %v", err)
	}
}

func TestExecute_BreakerOpensAfterThreshold(t *testing.T) {
	f := newFixture(t, Config{})
	opened := f.bus.Subscribe(events.TypeCircuitOpened)

	// 5 consecutive failures within one execution trip the breaker and
	// the run ends with a fail-fast before any further recovery.
	_, err := f.orch.Execute(context.Background(), execCtx("flaky", domain.StageTest, 10),
		func(ctx context.Context) (any, error) {
			return nil, errors.New("persistent failure")
		})

	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("expected circuit open termination, got %v", err)
	}

	select {
	case e := <-opened:
		if e.(events.CircuitOpened).Resource != "flaky" {
			t.Error("wrong resource in CircuitOpened event")
		}
	case <-time.After(time.Second):
		t.Fatal("expected CircuitOpened event")
	}
}

func TestExecute_CircuitOpenKeepsDiagnosis(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	breakers := breaker.NewRegistry(breaker.Config{Threshold: 2, OpenTimeout: time.Minute})
	registry := strategy.NewRegistry(nil)

	recoverCalls := 0
	registry.Register(&strategy.RecoveryStrategy{
		Name:  "reconnect",
		Kinds: domain.KindList{domain.KindTimeoutExceeded},
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			recoverCalls++
			return false
		},
	})

	orch := New(Config{}, classify.NewClassifier(), registry, breakers, nil, bus, nil)
	orch.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	_, err := orch.Execute(context.Background(), execCtx("gateway", domain.StageExternal, 5),
		func(ctx context.Context) (any, error) {
			calls++
			return nil, domain.Tag(domain.KindTimeoutExceeded, errors.New("read deadline"))
		})

	// The second failure opens the breaker: no further attempt and no
	// strategy run against the gated resource.
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if recoverCalls != 1 {
		t.Errorf("expected 1 strategy run before the circuit opened, got %d", recoverCalls)
	}

	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("expected circuit open termination, got %v", err)
	}
	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected ClassifiedError, got %T", err)
	}
	if classified.Kind != domain.KindTimeoutExceeded {
		t.Errorf("terminal kind must come from the last failure, got %s", classified.Kind)
	}
	if len(classified.RecoveryActions) != 1 || classified.RecoveryActions[0] != "reconnect" {
		t.Errorf("terminal error must carry the attempted actions, got %v", classified.RecoveryActions)
	}
	if classified.Attempts != 2 {
		t.Errorf("expected 2 attempts recorded, got %d", classified.Attempts)
	}
}

func TestExecute_TimeoutBecomesTimeoutKind(t *testing.T) {
	f := newFixture(t, Config{})

	ctx := execCtx("slow", domain.StageTest, 1)
	ctx.Timeout = 20 * time.Millisecond

	_, err := f.orch.Execute(context.Background(), ctx,
		func(ctx context.Context) (any, error) {
			<-ctx.Done() // cooperative: give up when the guard fires
			return nil, ctx.Err()
		})

	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected ClassifiedError, got %T: %v", err, err)
	}
	if classified.Kind != domain.KindTimeoutExceeded {
		t.Errorf("expected timeout kind, got %s", classified.Kind)
	}
}

func TestExecute_BlockingFailureAborts(t *testing.T) {
	f := newFixture(t, Config{})
	aborted := f.bus.Subscribe(events.TypeAborted)

	ctx := execCtx("prod-cluster", domain.StageDeploy, 1)
	_, err := f.orch.Execute(context.Background(), ctx,
		func(ctx context.Context) (any, error) {
			return nil, errors.New("rollout failed")
		})

	if !errors.Is(err, domain.ErrAborted) {
		t.Fatalf("expected abort signal, got %v", err)
	}
	// The classified diagnosis still rides along.
	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Error("abort must wrap the classified error")
	}

	select {
	case e := <-aborted:
		ab := e.(events.Aborted)
		if ab.Stage != domain.StageDeploy || ab.Kind != domain.KindDeploymentFailure {
			t.Errorf("unexpected abort payload: %+v", ab)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Aborted event")
	}
}

func TestExecute_NonBlockingExhaustionDoesNotAbort(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.orch.Execute(context.Background(), execCtx("unit-tests", domain.StageTest, 1),
		func(ctx context.Context) (any, error) {
			return nil, errors.New("flaky test")
		})

	if errors.Is(err, domain.ErrAborted) {
		t.Error("plain exhaustion must not carry the abort signal")
	}
}

func TestExecute_ErrorEventRecordsActions(t *testing.T) {
	f := newFixture(t, Config{})
	tracked := f.bus.Subscribe(events.TypeErrorTracked)

	f.registry.Register(&strategy.RecoveryStrategy{
		Name:  "flush-cache",
		Kinds: domain.KindList{domain.KindResourceExhaustion},
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			return false
		},
	})
	f.registry.Register(&strategy.RecoveryStrategy{
		Name:     "scale-up",
		Kinds:    domain.KindList{domain.KindResourceExhaustion},
		Priority: 1,
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			return false
		},
	})

	_, err := f.orch.Execute(context.Background(), execCtx("worker", domain.StageExternal, 1),
		func(ctx context.Context) (any, error) {
			return nil, errors.New("out of memory")
		})

	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected ClassifiedError, got %T", err)
	}
	if classified.Kind != domain.KindResourceExhaustion {
		t.Errorf("expected resource_exhaustion, got %s", classified.Kind)
	}

	select {
	case <-tracked:
	case <-time.After(time.Second):
		t.Fatal("expected ErrorTracked event")
	}
}

func TestExecute_FinalErrorCarriesAttemptedActions(t *testing.T) {
	f := newFixture(t, Config{})

	f.registry.Register(&strategy.RecoveryStrategy{
		Name: "restart-runner",
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			return false
		},
	})

	_, err := f.orch.Execute(context.Background(), execCtx("runner", domain.StageTest, 1),
		func(ctx context.Context) (any, error) {
			return nil, errors.New("exit status 1")
		})

	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected ClassifiedError, got %T", err)
	}
	if len(classified.RecoveryActions) == 0 {
		t.Error("terminal error must list attempted recovery actions")
	}
	if classified.RecoveryActions[0] != "restart-runner" {
		t.Errorf("unexpected actions: %v", classified.RecoveryActions)
	}
}

func TestExecute_ObserverSeesOutcomes(t *testing.T) {
	f := newFixture(t, Config{})

	f.orch.Execute(context.Background(), execCtx("db", domain.StageTest, 0),
		func(ctx context.Context) (any, error) { return nil, nil })

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	if len(f.observer.outcomes) != 1 || !f.observer.outcomes[0].Success {
		t.Errorf("expected one success outcome, got %+v", f.observer.outcomes)
	}
}

func TestBackoff_Capped(t *testing.T) {
	o := New(Config{BackoffBase: time.Second, BackoffCap: 10 * time.Second},
		classify.NewClassifier(), strategy.NewRegistry(nil),
		breaker.NewRegistry(breaker.Config{}), nil, events.NewBus(), nil)

	if d := o.backoff(1); d != time.Second {
		t.Errorf("attempt 1: expected 1s, got %v", d)
	}
	if d := o.backoff(3); d != 4*time.Second {
		t.Errorf("attempt 3: expected 4s, got %v", d)
	}
	if d := o.backoff(20); d != 10*time.Second {
		t.Errorf("attempt 20: expected cap, got %v", d)
	}
}
