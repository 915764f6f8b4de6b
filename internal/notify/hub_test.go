package notify

import (
	"encoding/json"
	"testing"
	"time"

	"tokoku/backend/internal/domain"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe()
	ch2, cancel2 := hub.Subscribe()
	defer cancel1()
	defer cancel2()

	hub.BroadcastOrder(domain.OrderEventCreated, domain.Order{ID: "order-1", Status: domain.OrderStatusPending})

	for i, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case payload := <-ch:
			var event domain.OrderEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if event.Event != domain.OrderEventCreated || event.Order.ID != "order-1" {
				t.Fatalf("unexpected event payload: %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i+1)
		}
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe()
	if hub.ListenerCount() != 1 {
		t.Fatalf("expected 1 listener, got %d", hub.ListenerCount())
	}

	cancel()
	if hub.ListenerCount() != 0 {
		t.Fatalf("expected 0 listeners after cancel, got %d", hub.ListenerCount())
	}

	// A second cancel must be a no-op, not a double close.
	cancel()
}

func TestSlowListenerDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			hub.BroadcastOrder(domain.OrderEventUpdated, domain.Order{ID: "order-slow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on slow listener")
	}
}
