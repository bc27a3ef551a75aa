package events

import (
	"sync"

	"github.com/vietddude/failsafe/internal/engine/metrics"
)

// subscriberBuffer is the channel depth handed to each subscriber. A full
// buffer means the subscriber loses events, never that the publisher
// blocks.
const subscriberBuffer = 64

// Bus fans events out to subscribers. Publish is fire-and-forget: slow or
// failing subscribers never block the publisher's critical path.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]chan Event
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]chan Event)}
}

// Subscribe returns a buffered channel receiving events of the given type.
// The channel is closed when the bus shuts down.
func (b *Bus) Subscribe(t Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[t] = append(b.subs[t], ch)
	return ch
}

// Publish delivers the event to all subscribers of its type without
// blocking. Events to full subscribers are dropped and counted.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[e.Type()] {
		select {
		case ch <- e:
		default:
			metrics.DroppedEvents.WithLabelValues(string(e.Type())).Inc()
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Publish
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[Type][]chan Event)
}
