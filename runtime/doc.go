// Package runtime provides the high-level API for callback interfaces.
//
// A Runtime scopes everything a process needs to call foreign interface
// implementations: the in-process foreign host, the dispatcher in front of
// it, the metadata registry and, when guests are loaded, the wasm engine.
// Closing the Runtime frees every proxy it created and releases every
// foreign object still registered.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.Config{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Implement an interface on the foreign side
//	h, err := rt.Host().Register(foreign.Methods{
//	    foreign.Method1(codec.Int32, codec.Int32, double),
//	})
//
//	// Call it from the native side
//	p := rt.NewProxy(h)
//	v, err := proxy.Invoke(ctx, p, 0, codec.Int32, func(w *codec.Writer) {
//	    w.WriteI32(21)
//	})
//
// # Binding Go values
//
// Bind exposes a Go value as a foreign object for a declared interface.
// Methods are matched by name ignoring case, dashes and underscores, so the
// declared method "get-value" binds GetValue. A bound method may take a
// context.Context first, must take the declared parameters in order, and
// returns (result, error), result, error or nothing.
//
//	iface, _ := metadata.ParseWIT("app", "Counter", `add: func(n: s64) -> s64;`)
//	h, err := rt.RegisterImpl(iface, &counter{})
//
// # Guests
//
// LoadGuest compiles a wasm module implementing the callback ABI (see package
// engine). Each Instance has its own dispatcher; proxies created from it call
// into that guest.
//
//	mod, err := rt.LoadGuest(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx)
//	p := inst.NewProxy(handle)
package runtime
