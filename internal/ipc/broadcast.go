package ipc

import (
	"log/slog"
	"sync"

	"aigent/internal/runtime"
)

// broadcastCapacity is the fixed-size ring each subscriber channel holds;
// a subscriber that falls this far behind loses its oldest undelivered
// events with a warn log rather than blocking the publisher (spec §5).
const broadcastCapacity = 256

// Broadcaster fans out BackendEvents to every active Subscribe client. Go
// has no `tokio::sync::broadcast`; this is its buffered-channel-per-
// subscriber equivalent, a non-blocking send that drops and warns on a
// full channel instead of retransmitting.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan runtime.BackendEvent
	next int
}

// NewBroadcaster returns an empty broadcast hub.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan runtime.BackendEvent)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe func the caller must defer.
func (b *Broadcaster) Subscribe() (<-chan runtime.BackendEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan runtime.BackendEvent, broadcastCapacity)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			close(c)
			delete(b.subs, id)
		}
	}
}

// Publish delivers event to every current subscriber, non-blocking. A
// subscriber whose channel is full is considered lagged: the event is
// dropped for it and a warning is logged, per spec §5's backpressure rule.
func (b *Broadcaster) Publish(event runtime.BackendEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("ipc: subscriber lagged, dropping event", "subscriber_id", id, "event_type", event.Type)
		}
	}
}
