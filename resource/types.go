package resource

import callbackrt "github.com/wippyai/callback-runtime"

// Handle is an opaque reference to an object in a registry.
type Handle = callbackrt.Handle

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }

// Backend provides the underlying storage for registered objects.
type Backend interface {
	// Create stores a value and returns a fresh handle.
	Create(value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop invalidates a handle and returns its value.
	// Returns (nil, false) if the handle is unknown or already dropped.
	Drop(handle Handle) (any, bool)

	// Close invalidates every handle and returns the values that were live.
	// Create fails afterwards.
	Close() []any

	// Len returns the number of live handles.
	Len() int

	// Each iterates over live handles until fn returns false.
	Each(fn func(Handle, any) bool)
}

// Dropper is optionally implemented by registered values that need cleanup
// when their handle is released.
type Dropper interface {
	Drop()
}

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func splitHandle(h Handle) (slot, gen uint32, ok bool) {
	low := uint32(h)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(h >> 32), true
}
