package core

import "sync"

// EventType identifies the kind of event fired on the bus.
type EventType int

const (
	EventVpnStateChanged EventType = iota
	EventConfigReloaded
	EventSessionStarted
	EventSessionClosed
)

// Event carries data about something that happened in the system.
type Event struct {
	Type    EventType
	Payload any
}

// VpnStatePayload is the payload for EventVpnStateChanged.
type VpnStatePayload struct {
	Old VpnState
	New VpnState
}

// SessionPayload is the payload for session lifecycle events.
// Byte counts are final for EventSessionClosed and zero for EventSessionStarted.
type SessionPayload struct {
	ID         SessionID
	Protocol   string // "tcp" or "udp"
	Descriptor string
	TxBytes    uint64
	RxBytes    uint64
}

// Handler is a callback for bus subscribers.
type Handler func(Event)

// EventBus provides pub/sub between system components.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a ready-to-use event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a given event type.
func (eb *EventBus) Subscribe(t EventType, h Handler) {
	eb.mu.Lock()
	eb.handlers[t] = append(eb.handlers[t], h)
	eb.mu.Unlock()
}

// Publish fires an event to all subscribed handlers synchronously.
// A nil bus is valid and drops the event.
func (eb *EventBus) Publish(e Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	handlers := eb.handlers[e.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
