package app

import (
	"sync"

	"github.com/yourusername/clipfetch/internal/domain"
)

const defaultSubscriberBuffer = 32

type subscriber struct {
	ch chan domain.ProgressEvent
}

// ProgressHub fans progress events of running fetches out to watchers.
// Publishing never blocks: a slow subscriber loses intermediate events but
// always receives the terminal one, after which its channel is closed.
type ProgressHub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

// NewProgressHub creates a hub whose subscriber channels hold buffer events
func NewProgressHub(buffer int) *ProgressHub {
	if buffer < 1 {
		buffer = defaultSubscriberBuffer
	}
	return &ProgressHub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers interest in one fetch. The returned func unsubscribes
// and is safe to call after the hub already closed the channel.
func (h *ProgressHub) Subscribe(fetchID string) (<-chan domain.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan domain.ProgressEvent, h.buffer)}

	h.mu.Lock()
	if h.subs[fetchID] == nil {
		h.subs[fetchID] = make(map[*subscriber]struct{})
	}
	h.subs[fetchID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[fetchID][sub]; ok {
				h.remove(fetchID, sub)
			}
		})
	}
}

// Publish delivers an event to every subscriber of the fetch
func (h *ProgressHub) Publish(fetchID string, event domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[fetchID] {
		select {
		case sub.ch <- event:
		default:
			if !event.IsTerminal() {
				continue
			}
			// Make room for the terminal event
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
		if event.IsTerminal() {
			h.remove(fetchID, sub)
		}
	}
}

// Subscribers returns the number of watchers of a fetch
func (h *ProgressHub) Subscribers(fetchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[fetchID])
}

// remove must be called with h.mu held
func (h *ProgressHub) remove(fetchID string, sub *subscriber) {
	delete(h.subs[fetchID], sub)
	if len(h.subs[fetchID]) == 0 {
		delete(h.subs, fetchID)
	}
	close(sub.ch)
}
