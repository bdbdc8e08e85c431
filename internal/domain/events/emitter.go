package events

import (
	"sort"
	"sync"
)

// Handler receives events from an Emitter.
type Handler func(Event)

// Emitter is a per-instance publish/subscribe registry. Dispatch is
// synchronous and runs handlers in subscription order; handlers must not
// block.
type Emitter struct {
	mu   sync.Mutex
	next int
	subs map[int]Handler
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a cancel function. Cancelling
// twice is harmless.
func (e *Emitter) Subscribe(h Handler) func() {
	e.mu.Lock()
	token := e.next
	e.next++
	e.subs[token] = h
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, token)
		e.mu.Unlock()
	}
}

// Emit delivers an event to all current subscribers.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.subs))
	order := make([]int, 0, len(e.subs))
	for token := range e.subs {
		order = append(order, token)
	}
	// Stable subscription order.
	sort.Ints(order)
	for _, token := range order {
		handlers = append(handlers, e.subs[token])
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
