// Package event provides a typed, synchronous event emitter. Listeners run on
// the goroutine that fires the event, in subscription order.
package event

import "sync"

// Listener receives fired values.
type Listener[T any] func(T)

// Subscription represents an active listener.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Dispose removes the listener. Calling it more than once is harmless.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type entry[T any] struct {
	id       uint64
	listener Listener[T]
}

// Emitter fans a value out to every subscribed listener.
type Emitter[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []entry[T]
}

// Subscribe registers l and returns the subscription that removes it.
func (e *Emitter[T]) Subscribe(l Listener[T]) *Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, entry[T]{id: id, listener: l})
	e.mu.Unlock()

	return &Subscription{cancel: func() { e.remove(id) }}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, en := range e.listeners {
		if en.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Fire delivers v to the listeners subscribed at the time of the call.
func (e *Emitter[T]) Fire(v T) {
	e.mu.RLock()
	current := make([]entry[T], len(e.listeners))
	copy(current, e.listeners)
	e.mu.RUnlock()

	for _, en := range current {
		en.listener(v)
	}
}

// Len returns the number of active listeners.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
