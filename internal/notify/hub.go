package notify

import (
	"encoding/json"
	"log"
	"sync"

	"tokoku/backend/internal/domain"
)

// Hub fans out order events to all connected listeners. Broadcasts never
// block the caller: a listener whose buffer is full misses the event and the
// miss is logged. The HTTP side of a subscription lives in httpapi; the hub
// only deals in marshalled payloads.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
	buffer      int
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan []byte]struct{}),
		buffer:      16,
	}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away; after cancel the channel is closed.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, h.buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// BroadcastOrder sends an order event to every listener. Failures are
// logged and never propagated to the caller.
func (h *Hub) BroadcastOrder(event string, order domain.Order) {
	payload, err := json.Marshal(domain.OrderEvent{Event: event, Order: order})
	if err != nil {
		log.Printf("[notify] marshal order event %s: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			log.Printf("[notify] dropping %s event for slow listener", event)
		}
	}
}

// ListenerCount reports the number of connected listeners.
func (h *Hub) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
