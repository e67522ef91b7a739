// Package foreign implements the foreign side of the callback protocol in
// process: objects are registered under handles and reached only through
// InvokeCallback.
//
// Host satisfies invoke.Boundary, so a proxy can forward to Go objects the
// same way it forwards to a wasm guest:
//
//	host := foreign.NewHost()
//	h, _ := host.Register(foreign.Methods{
//	    foreign.Method1(codec.Int32, codec.Int32, func(ctx context.Context, x int32) (int32, error) {
//	        return x * 2, nil
//	    }),
//	})
//	status, out, _ := host.InvokeCallback(ctx, h, 1, args)
//
// Objects signal a typed error result by returning a *CallError; the payload
// travels back with StatusError. Any other error, and any panic, becomes
// StatusUnexpectedFailure with the message as diagnostic text.
package foreign
