package events

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventExitSignal, func(ev Event) { got <- ev })

	bus.PublishExitSignal("XBTUSD", map[string]interface{}{"pressure": 72.0})

	ev := waitFor(t, got)
	if ev.Type != EventExitSignal {
		t.Errorf("type = %s, want %s", ev.Type, EventExitSignal)
	}
	if ev.Data["pair"] != "XBTUSD" {
		t.Errorf("pair = %v, want XBTUSD", ev.Data["pair"])
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp must be filled in")
	}
}

func TestSubscriberIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventDCASignal, func(ev Event) { got <- ev })

	bus.PublishSignalUpdate("XBTUSD", nil)

	select {
	case ev := <-got:
		t.Errorf("unexpected event %s for a DCA-only subscriber", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 4)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.PublishSignalUpdate("XBTUSD", nil)
	bus.PublishPositionUpdate("XBTUSD", nil)
	bus.PublishError("engine", "boom", nil)

	seen := map[EventType]bool{}
	for i := 0; i < 3; i++ {
		seen[waitFor(t, got).Type] = true
	}
	for _, want := range []EventType{EventSignalUpdate, EventPositionUpdate, EventError} {
		if !seen[want] {
			t.Errorf("all-events subscriber missed %s", want)
		}
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not panic or block.
	bus.Publish(Event{Type: EventEngineStarted})
	bus.PublishDCASignal("XBTUSD", nil)
}
