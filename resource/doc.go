// Package resource provides the handle registry that names foreign-side
// object instances.
//
// A handle is an opaque 64-bit value. The registry maps it to a live object
// until the handle is released, which happens exactly once, when the native
// proxy issues its free call.
//
// # Handle Layout
//
// Handles are arena indexes tagged with a generation:
//
//	bits 0..31   slot index + 1 (never zero)
//	bits 32..63  slot generation
//
// Releasing a handle bumps the slot's generation before the slot is reused,
// so a stale handle never resolves to the object that later takes its slot.
// Handle 0 is never issued.
//
// # Usage
//
//	reg := resource.NewRegistry()
//	defer reg.Close()
//
//	h, err := reg.Register(impl)
//	obj, ok := reg.Lookup(h)
//	obj, ok = reg.Release(h) // ok is true exactly once
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	stop := reg.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventReleased {
//	        log.Printf("handle %d released", e.Handle)
//	    }
//	}))
//	defer stop()
//
// # Lifetime
//
// The registry is explicitly scoped. Close releases every live object,
// calling Drop on values that implement Dropper, and rejects further
// registrations with ErrClosed.
package resource
