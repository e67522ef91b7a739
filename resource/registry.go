package resource

import (
	"sync"
)

// Registry issues handles for foreign-side objects and resolves them until
// they are released.
type Registry struct {
	backend   Backend
	observers []subscription
	nextSub   uint64
	obsMu     sync.RWMutex
}

type subscription struct {
	obs Observer
	id  uint64
}

// NewRegistry creates an empty registry backed by a LocalBackend.
func NewRegistry() *Registry {
	return NewRegistryWithBackend(NewLocalBackend())
}

// NewRegistryWithBackend creates a registry over a custom storage backend.
func NewRegistryWithBackend(b Backend) *Registry {
	return &Registry{backend: b}
}

// Register stores obj and returns a handle that is unique among live objects.
func (r *Registry) Register(obj any) (Handle, error) {
	handle, err := r.backend.Create(obj)
	if err != nil {
		return 0, err
	}

	r.notify(Event{
		Type:   EventRegistered,
		Handle: handle,
		Value:  obj,
	})

	return handle, nil
}

// Lookup resolves a live handle.
func (r *Registry) Lookup(handle Handle) (any, bool) {
	return r.backend.Get(handle)
}

// Release invalidates handle and returns its object. It reports true exactly
// once per registered handle.
func (r *Registry) Release(handle Handle) (any, bool) {
	value, ok := r.backend.Drop(handle)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	r.notify(Event{
		Type:   EventReleased,
		Handle: handle,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it. Observers are identified by subscription, not by value, so
// func-backed observers can be removed too. Calling the returned function
// more than once is a no-op.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.nextSub++
	id := r.nextSub
	r.observers = append(r.observers, subscription{obs: o, id: id})
	return func() { r.unsubscribe(id) }
}

func (r *Registry) unsubscribe(id uint64) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, sub := range r.observers {
		if sub.id == id {
			r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return r.backend.Len()
}

// Each iterates over live handles until fn returns false.
func (r *Registry) Each(fn func(Handle, any) bool) {
	r.backend.Each(fn)
}

// Close releases all live objects and stops accepting registrations.
func (r *Registry) Close() error {
	for _, v := range r.backend.Close() {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, sub := range r.observers {
		sub.obs.OnHandleEvent(e)
	}
}
