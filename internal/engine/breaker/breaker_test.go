package breaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, openTimeout time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker("db-main", Config{Threshold: threshold, OpenTimeout: openTimeout})
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		if opened := b.RecordFailure(); opened {
			t.Fatalf("breaker opened too early at failure %d", i+1)
		}
	}
	if b.State() != StateClosed {
		t.Fatal("breaker should still be closed below threshold")
	}

	if opened := b.RecordFailure(); !opened {
		t.Fatal("third failure should open the breaker")
	}
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}
}

func TestBreaker_FailsFastWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.RecordFailure()

	err := b.Allow()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Error("intervening success must reset the consecutive count")
	}
	if b.Failures() != 2 {
		t.Errorf("expected 2 failures after reset, got %d", b.Failures())
	}
}

func TestBreaker_HalfOpenTrialSuccess(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)
	b.RecordFailure()

	// Still open before the timeout.
	if err := b.Allow(); err == nil {
		t.Fatal("expected fail-fast before open timeout")
	}

	*now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call allowed after timeout, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("trial success should close the breaker, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)
	b.RecordFailure()

	*now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial allowed, got %v", err)
	}

	if opened := b.RecordFailure(); !opened {
		t.Fatal("half-open failure should reopen the breaker")
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	// lastFailure was refreshed: the very next call fails fast again.
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected fail-fast after reopen, got %v", err)
	}
}

func TestBreaker_HalfOpenAdmitsOneTrialAtATime(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)
	b.RecordFailure()

	*now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial allowed, got %v", err)
	}

	// Until the trial outcome is recorded, further callers fail fast.
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected second caller rejected during trial, got %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected third caller rejected during trial, got %v", err)
	}

	b.RecordSuccess()
	if err := b.Allow(); err != nil {
		t.Fatalf("expected allowed after trial success, got %v", err)
	}
}

func TestRegistry_PerResourceIsolation(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, OpenTimeout: time.Minute})

	r.Get("db-main").RecordFailure()

	if err := r.Get("db-main").Allow(); err == nil {
		t.Error("db-main should be open")
	}
	if err := r.Get("cache").Allow(); err != nil {
		t.Errorf("cache should be unaffected, got %v", err)
	}
}

func TestRegistry_AnyOpen(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, OpenTimeout: time.Minute})

	if _, open := r.AnyOpen([]string{"db-main", "cache"}); open {
		t.Fatal("no breaker should be open yet")
	}

	r.Get("cache").RecordFailure()
	name, open := r.AnyOpen([]string{"db-main", "cache"})
	if !open || name != "cache" {
		t.Errorf("expected cache open, got %q open=%v", name, open)
	}
}
