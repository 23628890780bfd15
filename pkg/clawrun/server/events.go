// Package server exposes the runtime over HTTP: an SSE event stream per
// conversation, plus the rendezvous endpoints that resolve in-process tool
// confirmations and elicitations from a remote client.
package server

import (
	"log/slog"
	"sync"
)

// Event is one typed SSE event.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// EventBus fans events out to the subscribers of each conversation. Events
// for a conversation are delivered in publish order; a slow subscriber drops
// events rather than blocking the worker.
type EventBus struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a listener for one conversation. The returned cancel
// function must be called when the listener goes away.
func (b *EventBus) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[chan Event]struct{})
	}
	b.subs[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[conversationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, conversationID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the conversation.
func (b *EventBus) Publish(conversationID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[conversationID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("subscriber lagging, event dropped",
				"conversation", conversationID, "event", ev.Type)
		}
	}
}

// Broadcast delivers an event to every subscriber of every conversation.
func (b *EventBus) Broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for ch := range set {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount reports the listeners of one conversation.
func (b *EventBus) SubscriberCount(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[conversationID])
}
