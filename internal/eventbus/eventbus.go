// Package eventbus is the in-process implementation of the domain event bus.
// For production fan-out across processes it can be swapped for a broker
// behind the same shape; subscribers must stay idempotent either way because
// delivery is at-least-once.
package eventbus

import (
	"log/slog"
	"sync"
)

// Event is anything with a stable type tag.
type Event interface {
	EventType() string
}

// Handler consumes one event. Handlers run synchronously on the publisher's
// goroutine; long work belongs behind the handler, not in it.
type Handler func(Event)

type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	log      *slog.Logger
}

func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
	b.mu.Unlock()
}

// Publish dispatches ev to every handler registered for its type. A panicking
// handler is isolated and logged; remaining handlers still run.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	hs := b.handlers[ev.EventType()]
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(ev, h)
	}
}

func (b *Bus) dispatch(ev Event, h Handler) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("event handler panicked", "event_type", ev.EventType(), "panic", p)
		}
	}()
	h(ev)
}

// Close stops dispatching. Registered handlers are kept so a Close during
// shutdown is safe to race with in-flight Publish calls.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
