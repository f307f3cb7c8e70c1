// Package handles maps small integer handles to locally held objects so that
// a caller on the other side of an asynchronous boundary can refer to an object
// it cannot hold directly.
package handles

import (
	"sort"
	"sync"
)

// Handle identifies a bound object. The zero handle is never allocated.
type Handle int

// Registry is a goroutine-safe arena of values addressed by Handle.
// Allocated handles grow monotonically and are never reused during the
// lifetime of the registry.
type Registry[T any] struct {
	mu     sync.RWMutex
	next   Handle
	values map[Handle]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		values: make(map[Handle]T),
	}
}

// Allocate reserves a fresh handle without binding a value to it.
func (r *Registry[T]) Allocate() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocateLocked()
}

func (r *Registry[T]) allocateLocked() Handle {
	r.next++
	return r.next
}

// Bind associates value with h, replacing any previous binding. Handles that
// were assigned by the remote side may be bound directly; the allocator is
// advanced past them so later allocations cannot collide.
func (r *Registry[T]) Bind(h Handle, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h > r.next {
		r.next = h
	}
	r.values[h] = value
}

// BindNew is Bind for a handle that must not be bound yet. It reports false,
// and leaves the existing binding alone, when h is already in use.
func (r *Registry[T]) BindNew(h Handle, value T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[h]; ok {
		return false
	}
	if h > r.next {
		r.next = h
	}
	r.values[h] = value
	return true
}

// Register allocates a handle and binds value to it.
func (r *Registry[T]) Register(value T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.allocateLocked()
	r.values[h] = value
	return h
}

// Resolve returns the value bound to h. An unbound or released handle yields
// ok == false, which callers treat as a no-op.
func (r *Registry[T]) Resolve(h Handle) (value T, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok = r.values[h]
	return value, ok
}

// Release unbinds h and returns the value that was bound, if any.
func (r *Registry[T]) Release(h Handle) (value T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok = r.values[h]
	delete(r.values, h)
	return value, ok
}

// ReleaseIf unbinds h only while match accepts the bound value, so a stale
// owner cannot release a handle that has been bound again.
func (r *Registry[T]) ReleaseIf(h Handle, match func(T) bool) (value T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok = r.values[h]
	if !ok || !match(value) {
		var zero T
		return zero, false
	}
	delete(r.values, h)
	return value, true
}

// Len returns the number of bound handles.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// Entry is a bound handle together with its value.
type Entry[T any] struct {
	Handle Handle
	Value  T
}

// All returns the bound entries in handle order.
func (r *Registry[T]) All() []Entry[T] {
	r.mu.RLock()
	out := make([]Entry[T], 0, len(r.values))
	for h, v := range r.values {
		out = append(out, Entry[T]{Handle: h, Value: v})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
