package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event is one published message. Payload is a typed struct from payloads.go;
// Channel routes the event for WebSocket delivery (GlobalChannel when the
// event has no workflow affinity).
type Event struct {
	Type      string    `json:"type"`
	Component string    `json:"component"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block; long-running side effects belong
// behind SubscribeBuffered.
type Handler func(Event)

// Bus is a process-wide publish/subscribe dispatcher keyed by event type.
// Construct one per process (or per test) and thread it into components
// explicitly; there is no package-level singleton.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	// type → subscriber id → handler. The empty type key subscribes to all.
	subs map[string]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for the given event types. With no types the
// handler receives every event. Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Handler, types ...string) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	keys := types
	if len(keys) == 0 {
		keys = []string{""}
	}
	for _, t := range keys {
		if b.subs[t] == nil {
			b.subs[t] = make(map[int]Handler)
		}
		b.subs[t][id] = handler
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range keys {
			delete(b.subs[t], id)
			if len(b.subs[t]) == 0 {
				delete(b.subs, t)
			}
		}
	}
}

// SubscribeBuffered registers an asynchronous subscriber backed by a buffered
// channel and a single delivery goroutine, preserving publish order. Events
// are dropped (with a warning) when the buffer is full — slow consumers must
// not stall publishers. Stop with the returned unsubscribe function.
func (b *Bus) SubscribeBuffered(buffer int, handler Handler, types ...string) (unsubscribe func()) {
	ch := make(chan Event, buffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for evt := range ch {
			handler(evt)
		}
	}()

	unsub := b.Subscribe(func(evt Event) {
		select {
		case ch <- evt:
		default:
			slog.Warn("Event bus subscriber buffer full, dropping event",
				"event_type", evt.Type, "component", evt.Component)
		}
	}, types...)

	return func() {
		unsub()
		close(ch)
		<-done
	}
}

// Publish dispatches an event on the global channel.
func (b *Bus) Publish(eventType, component string, payload any) {
	b.PublishTo(GlobalChannel, eventType, component, payload)
}

// PublishTo dispatches an event routed to a specific channel. Dispatch is
// synchronous: handlers for a single subscriber observe events from one
// component in publish order.
func (b *Bus) PublishTo(channel, eventType, component string, payload any) {
	evt := Event{
		Type:      eventType,
		Component: component,
		Channel:   channel,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[eventType])+len(b.subs[""]))
	for _, h := range b.subs[eventType] {
		handlers = append(handlers, h)
	}
	for _, h := range b.subs[""] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	// Dispatch outside the lock so handlers may subscribe/unsubscribe.
	for _, h := range handlers {
		h(evt)
	}
}
