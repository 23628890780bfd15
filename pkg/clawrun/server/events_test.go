package server

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestEventBus_PublishOrder(t *testing.T) {
	bus := NewEventBus(testLogger())
	events, cancel := bus.Subscribe("conv-1")
	defer cancel()

	bus.Publish("conv-1", Event{Type: "first"})
	bus.Publish("conv-1", Event{Type: "second"})
	bus.Publish("conv-2", Event{Type: "elsewhere"})

	if ev := <-events; ev.Type != "first" {
		t.Errorf("got %s, want first", ev.Type)
	}
	if ev := <-events; ev.Type != "second" {
		t.Errorf("got %s, want second", ev.Type)
	}
	select {
	case ev := <-events:
		t.Errorf("events for other conversations must not arrive: %+v", ev)
	default:
	}
}

func TestEventBus_CancelStopsDelivery(t *testing.T) {
	bus := NewEventBus(testLogger())
	events, cancel := bus.Subscribe("conv-1")
	if bus.SubscriberCount("conv-1") != 1 {
		t.Fatalf("subscriber count = %d", bus.SubscriberCount("conv-1"))
	}
	cancel()
	if bus.SubscriberCount("conv-1") != 0 {
		t.Error("cancel must remove the subscriber")
	}
	bus.Publish("conv-1", Event{Type: "late"})
	select {
	case ev := <-events:
		t.Errorf("cancelled subscriber received %+v", ev)
	default:
	}
}

func TestEventBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewEventBus(testLogger())
	_, cancel := bus.Subscribe("conv-1")
	defer cancel()

	// Nobody reads; the buffer fills, then publishes must not block.
	for i := 0; i < 200; i++ {
		bus.Publish("conv-1", Event{Type: "flood"})
	}
}

func TestEventBus_Broadcast(t *testing.T) {
	bus := NewEventBus(testLogger())
	a, cancelA := bus.Subscribe("conv-a")
	defer cancelA()
	b, cancelB := bus.Subscribe("conv-b")
	defer cancelB()

	bus.Broadcast(Event{Type: "config_changed"})

	if ev := <-a; ev.Type != "config_changed" {
		t.Errorf("subscriber a got %s", ev.Type)
	}
	if ev := <-b; ev.Type != "config_changed" {
		t.Errorf("subscriber b got %s", ev.Type)
	}
}
