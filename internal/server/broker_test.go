package server

import (
	"encoding/json"
	"testing"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

func TestBrokerPublish(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe(1)
	other := b.Subscribe(2)

	b.Publish(1, hiddencatch.Event{Type: hiddencatch.EventHit, StageNumber: 1, CurrentScore: 100})

	select {
	case data := <-a:
		var ev hiddencatch.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != hiddencatch.EventHit || ev.CurrentScore != 100 {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("subscriber of game 1 got nothing")
	}

	select {
	case data := <-other:
		t.Fatalf("subscriber of game 2 got %s", data)
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(7)
	if n := b.Subscribers(7); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	b.Unsubscribe(7, ch)
	if n := b.Subscribers(7); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
	b.Publish(7, hiddencatch.Event{Type: hiddencatch.EventGame})
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(1)

	for i := 0; i < cap(ch)+5; i++ {
		b.Publish(1, hiddencatch.Event{Type: hiddencatch.EventSlot, SlotNumber: i + 1})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want %d", len(ch), cap(ch))
	}
}
