// Package event provides the typed publish/subscribe primitives shared by the
// parley components.
//
// Every component exposes one [Emitter] per event kind. Subscribing returns an
// unsubscribe function; callers that hold several subscriptions collect them
// in a [Subscriptions] set and release them together on teardown, so that no
// handler outlives the component that registered it.
//
// [Queue] serialises handler execution: events enqueued from several
// goroutines are delivered one at a time, in enqueue order, and a handler that
// triggers further events sees them delivered after it returns rather than
// recursively.
package event

import "sync"

// Emitter fans a value of type T out to any number of subscribers. The zero
// value is ready to use. All methods are safe for concurrent use.
type Emitter[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []handler[T]
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

// On registers fn and returns a function that removes it again. The returned
// function may be called any number of times; only the first call has effect.
// A nil fn is ignored and yields a no-op unsubscribe.
func (e *Emitter[T]) On(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, handler[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every registered handler with v in subscription order. Handlers
// are snapshotted before the first call, so a handler may subscribe or
// unsubscribe without affecting the current emission.
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	if len(e.handlers) == 0 {
		e.mu.RUnlock()
		return
	}
	hs := make([]func(T), len(e.handlers))
	for i, h := range e.handlers {
		hs[i] = h.fn
	}
	e.mu.RUnlock()

	for _, fn := range hs {
		fn(v)
	}
}

// Len returns the number of registered handlers.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Subscriptions collects unsubscribe functions so they can be released as a
// group. The zero value is ready to use and safe for concurrent use.
type Subscriptions struct {
	mu     sync.Mutex
	unsubs []func()
}

// Add records unsub for a later [Subscriptions.Release].
func (s *Subscriptions) Add(unsub ...func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs, unsub...)
}

// Release calls every recorded unsubscribe function in reverse order of
// registration and forgets them. Releasing an empty set is a no-op.
func (s *Subscriptions) Release() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for i := len(unsubs) - 1; i >= 0; i-- {
		if unsubs[i] != nil {
			unsubs[i]()
		}
	}
}

// Len returns the number of recorded subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsubs)
}
