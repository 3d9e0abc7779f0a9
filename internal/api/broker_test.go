package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicPlans)
	other := b.Subscribe(TopicDrafts)

	evt := Event{Type: "plan.optimized", Data: map[string]any{"x": 1}}
	b.Publish(TopicPlans, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data.(map[string]any)["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("drafts subscriber got %+v", got)
	default:
	}

	b.Unsubscribe(TopicPlans, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// second unsubscribe is a no-op
	b.Unsubscribe(TopicPlans, ch)
	b.Unsubscribe(TopicDrafts, other)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicPlans)
	defer b.Unsubscribe(TopicPlans, ch)
	for i := 0; i < 100; i++ {
		b.Publish(TopicPlans, Event{Type: "x"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected a full buffer, got %d/%d", len(ch), cap(ch))
	}
}
