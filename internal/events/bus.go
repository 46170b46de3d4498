// Package events provides the in-process publish/subscribe bus connecting
// the engine to the websocket hub and other listeners.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalUpdate   EventType = "SIGNAL_UPDATE"
	EventPositionUpdate EventType = "POSITION_UPDATE"
	EventExitSignal     EventType = "EXIT_SIGNAL"
	EventDCASignal      EventType = "DCA_SIGNAL"
	EventEngineStarted  EventType = "ENGINE_STARTED"
	EventEngineStopped  EventType = "ENGINE_STOPPED"
	EventError          EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignalUpdate publishes a reversal signal update
func (b *Bus) PublishSignalUpdate(pair string, data interface{}) {
	b.Publish(Event{
		Type: EventSignalUpdate,
		Data: map[string]interface{}{
			"pair":   pair,
			"signal": data,
		},
	})
}

// PublishPositionUpdate publishes a position state update
func (b *Bus) PublishPositionUpdate(pair string, data interface{}) {
	b.Publish(Event{
		Type: EventPositionUpdate,
		Data: map[string]interface{}{
			"pair":     pair,
			"position": data,
		},
	})
}

// PublishExitSignal publishes an exit signal
func (b *Bus) PublishExitSignal(pair string, data interface{}) {
	b.Publish(Event{
		Type: EventExitSignal,
		Data: map[string]interface{}{
			"pair": pair,
			"exit": data,
		},
	})
}

// PublishDCASignal publishes a DCA recommendation
func (b *Bus) PublishDCASignal(pair string, data interface{}) {
	b.Publish(Event{
		Type: EventDCASignal,
		Data: map[string]interface{}{
			"pair": pair,
			"dca":  data,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
