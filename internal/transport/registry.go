package transport

import (
	"sync"

	"github.com/saravenpi/chatterbox/internal/log"
)

// Registry maps event names to a single handler and dispatches events to it
// one at a time, in delivery order.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	dispatchMu sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// On installs h as the only handler for event, replacing any previous one.
func (r *Registry) On(event string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, replaced := r.handlers[event]; replaced {
		log.Debug(log.CatTransport, "handler replaced", "event", event)
	}
	r.handlers[event] = h
}

// Off removes the handler for event. Removing an absent handler is a no-op.
func (r *Registry) Off(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, event)
}

// Has reports whether a handler is registered for event.
func (r *Registry) Has(event string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[event]
	return ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch delivers ev to its handler and reports whether one was registered.
// Concurrent callers are serialized so handlers never overlap.
func (r *Registry) Dispatch(ev Event) bool {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	r.mu.RLock()
	h, ok := r.handlers[ev.Name]
	r.mu.RUnlock()

	if !ok {
		log.Debug(log.CatTransport, "no handler", "event", ev.Name)
		return false
	}
	h(ev)
	return true
}
