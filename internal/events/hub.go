package events

import (
	"sync"
	"time"

	"github.com/mediavault/mediavault/pkg/api"
)

// subscriber holds one feed connection and its send channel.
type subscriber struct {
	id   string
	send chan api.Event
}

// Hub fans events out to all connected feed subscribers. Slow consumers
// are skipped rather than allowed to stall the broadcast path.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

// Add registers a subscriber and returns a remove function. The send
// function delivers events to the underlying connection; when it fails
// the writer goroutine stops and the subscriber goes quiet until removed.
func (h *Hub) Add(id string, send func(ev api.Event) error) (remove func()) {
	ch := make(chan api.Event, 256)
	sub := &subscriber{id: id, send: ch}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if err := send(ev); err != nil {
				return
			}
		}
	}()

	h.mu.Lock()
	if old, exists := h.subs[id]; exists {
		close(old.send)
	}
	h.subs[id] = sub
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		current, exists := h.subs[id]
		if !exists || current != sub {
			h.mu.Unlock()
			return
		}
		delete(h.subs, id)
		h.mu.Unlock()

		close(ch)
		select {
		case <-done:
		case <-time.After(1 * time.Second):
		}
	}
}

// Broadcast queues an event for every subscriber without blocking.
func (h *Hub) Broadcast(ev api.Event) {
	h.mu.RLock()
	subsCopy := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subsCopy = append(subsCopy, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subsCopy {
		select {
		case sub.send <- ev:
		default:
			// Channel full, drop for this subscriber.
		}
	}
}

// Count reports the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
