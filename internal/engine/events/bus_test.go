package events

import (
	"testing"
	"time"
)

func TestBus_DeliversToSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch := b.Subscribe(TypeCircuitOpened)
	b.Publish(CircuitOpened{Resource: "db-main", Failures: 5, Timestamp: time.Now()})

	select {
	case e := <-ch:
		opened, ok := e.(CircuitOpened)
		if !ok {
			t.Fatalf("unexpected payload type %T", e)
		}
		if opened.Resource != "db-main" {
			t.Errorf("expected db-main, got %s", opened.Resource)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	b := NewBus()
	defer b.Close()

	recovered := b.Subscribe(TypeRecovered)
	b.Publish(CircuitOpened{Resource: "db-main"})

	select {
	case e := <-recovered:
		t.Fatalf("recovered subscriber should not see %T", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	defer b.Close()

	// Subscriber never reads. Publish must still return promptly even
	// past the buffer size.
	b.Subscribe(TypeErrorTracked)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(ErrorTracked{Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_CloseClosesChannels(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(TypeAborted)
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after bus close")
	}

	// Publish after close must not panic.
	b.Publish(Aborted{OperationID: "op-1"})
}
