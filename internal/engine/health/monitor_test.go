package health

import (
	"testing"
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/breaker"
	"github.com/vietddude/failsafe/internal/engine/events"
)

func newTestMonitor(bus *events.Bus, breakers *breaker.Registry, required []string) *Monitor {
	return NewMonitor(DefaultThresholds(), time.Minute, breakers, required, bus)
}

func TestMonitor_SuccessRateBounds(t *testing.T) {
	m := newTestMonitor(nil, nil, nil)

	// A long failure burst must clamp at 0, not go negative.
	for i := 0; i < 100; i++ {
		m.apply(Outcome{Success: false, Kind: domain.KindTimeoutExceeded, Recoverable: true})
	}
	m.recompute()
	if got := m.Snapshot().SuccessRate; got != 0 {
		t.Errorf("expected success rate clamped to 0, got %f", got)
	}

	// A long success run must clamp at 100.
	for i := 0; i < 1000; i++ {
		m.apply(Outcome{Success: true})
	}
	m.recompute()
	if got := m.Snapshot().SuccessRate; got != 100 {
		t.Errorf("expected success rate clamped to 100, got %f", got)
	}
}

func TestMonitor_FailuresPullHarder(t *testing.T) {
	m := newTestMonitor(nil, nil, nil)

	// One failure needs five successes to recover the signal.
	m.apply(Outcome{Success: false, Kind: domain.KindUnknown})
	for i := 0; i < 5; i++ {
		m.apply(Outcome{Success: true})
	}
	m.recompute()
	if got := m.Snapshot().SuccessRate; got != 100 {
		t.Errorf("expected 100 after balancing, got %f", got)
	}
}

func TestMonitor_StatusThresholds(t *testing.T) {
	m := newTestMonitor(nil, nil, nil)

	// 5 failures: 100 - 25 = 75 -> degraded.
	for i := 0; i < 5; i++ {
		m.apply(Outcome{Success: false, Kind: domain.KindNetworkConnectivity})
	}
	m.recompute()
	if got := m.Snapshot().Status; got != StatusDegraded {
		t.Errorf("expected degraded at 75, got %s", got)
	}

	// 4 more: 55 -> critical.
	for i := 0; i < 4; i++ {
		m.apply(Outcome{Success: false, Kind: domain.KindNetworkConnectivity})
	}
	m.recompute()
	if got := m.Snapshot().Status; got != StatusCritical {
		t.Errorf("expected critical at 55, got %s", got)
	}
}

func TestMonitor_RequiredBreakerForcesCritical(t *testing.T) {
	breakers := breaker.NewRegistry(breaker.Config{Threshold: 1, OpenTimeout: time.Minute})
	m := newTestMonitor(nil, breakers, []string{"db-main"})

	breakers.Get("db-main").RecordFailure()
	m.recompute()

	snap := m.Snapshot()
	if snap.Status != StatusCritical {
		t.Errorf("expected critical with required breaker open, got %s", snap.Status)
	}
	if snap.OpenBreaker != "db-main" {
		t.Errorf("expected open breaker reported, got %q", snap.OpenBreaker)
	}
}

func TestMonitor_RecoveryRate(t *testing.T) {
	m := newTestMonitor(nil, nil, nil)

	// Nothing recoverable failed: defaults to 100.
	m.recompute()
	if got := m.Snapshot().RecoveryRate; got != 100 {
		t.Errorf("expected default 100, got %f", got)
	}

	m.apply(Outcome{Success: false, Kind: domain.KindConnectionFailure, Recoverable: true, Recovered: true})
	m.apply(Outcome{Success: false, Kind: domain.KindConnectionFailure, Recoverable: true, Recovered: false})
	m.recompute()
	if got := m.Snapshot().RecoveryRate; got != 50 {
		t.Errorf("expected 50, got %f", got)
	}

	// Window is trailing: the next tick with no failures resets to 100.
	m.recompute()
	if got := m.Snapshot().RecoveryRate; got != 100 {
		t.Errorf("expected reset to 100, got %f", got)
	}
}

func TestMonitor_TrendRingBounded(t *testing.T) {
	m := newTestMonitor(nil, nil, nil)

	for i := 0; i < trendSamples*3; i++ {
		m.recompute()
	}
	if got := len(m.Snapshot().Trend); got != trendSamples {
		t.Errorf("expected %d trend samples, got %d", trendSamples, got)
	}
}

func TestMonitor_EmitsHealthChanged(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch := bus.Subscribe(events.TypeHealthChanged)

	m := newTestMonitor(bus, nil, nil)
	for i := 0; i < 9; i++ {
		m.apply(Outcome{Success: false, Kind: domain.KindUnknown})
	}
	m.recompute()

	select {
	case e := <-ch:
		changed := e.(events.HealthChanged)
		if changed.Previous != string(StatusHealthy) || changed.Current != string(StatusCritical) {
			t.Errorf("unexpected transition %s -> %s", changed.Previous, changed.Current)
		}
	case <-time.After(time.Second):
		t.Fatal("expected HealthChanged event")
	}

	// No transition, no event.
	m.recompute()
	select {
	case <-ch:
		t.Fatal("unexpected event without a status change")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitor_FailureCountsByKind(t *testing.T) {
	m := newTestMonitor(nil, nil, nil)

	m.apply(Outcome{Success: false, Kind: domain.KindTimeoutExceeded})
	m.apply(Outcome{Success: false, Kind: domain.KindTimeoutExceeded})
	m.apply(Outcome{Success: false, Kind: domain.KindDeadlockDetected})
	m.recompute()

	snap := m.Snapshot()
	if snap.FailuresByKind["timeout_exceeded"] != 2 {
		t.Errorf("expected 2 timeouts, got %d", snap.FailuresByKind["timeout_exceeded"])
	}
	if snap.FailuresByKind["deadlock_detected"] != 1 {
		t.Errorf("expected 1 deadlock, got %d", snap.FailuresByKind["deadlock_detected"])
	}
}
