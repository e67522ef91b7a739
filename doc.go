// Package callbackrt lets Go code call interface methods whose implementation
// lives in a foreign runtime reachable only through an opaque handle and a
// positional argument buffer.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	callbackrt/          Root package with the protocol data model
//	├── codec/           Positional binary encoding of arguments and results
//	├── resource/        Handle registry for foreign-side object instances
//	├── foreign/         In-process foreign runtime (dispatch by handle)
//	├── invoke/          The single boundary crossing: status mapping, free
//	├── proxy/           Native stand-ins that forward calls through a handle
//	├── metadata/        Self-describing interface metadata buffers
//	├── engine/          wazero-backed foreign runtime (wasm guests)
//	├── runtime/         Lifecycle-scoped facade wiring the pieces together
//	├── config/          YAML configuration
//	└── errors/          Structured error types
//
// # Calling Convention
//
// Every call crosses the boundary as a (handle, method index, buffer) triple:
//
//	invoke_callback(handle u64, method u32, args bytes) -> (status, bytes)
//
// Method index 0 is reserved for the free call that ends a handle's life.
// Declared methods are numbered from 1 in declaration order.
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	h, _ := rt.Host().Register(foreign.Methods{double})
//	p := rt.NewProxy(h)
//	defer p.Close()
//
//	out, err := proxy.Invoke(ctx, p, 0, codec.Int32, func(w *codec.Writer) {
//	    codec.Int32.Write(w, 21)
//	})
//
// # Thread Safety
//
// Proxies, the dispatcher and the registry are safe for concurrent use.
// Whether calls reach the foreign side concurrently is decided by the
// dispatcher configuration, never by the proxy.
package callbackrt
