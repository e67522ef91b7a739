package invoke

import (
	"context"

	callbackrt "github.com/wippyai/callback-runtime"
)

// Boundary ships one (handle, method, buffer) triple to the foreign runtime.
// A non-nil error means the crossing itself failed; foreign outcomes travel in
// the status.
type Boundary interface {
	InvokeCallback(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (callbackrt.Status, []byte, error)
}

// BoundaryFunc adapts a function to the Boundary interface.
type BoundaryFunc func(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (callbackrt.Status, []byte, error)

func (f BoundaryFunc) InvokeCallback(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (callbackrt.Status, []byte, error) {
	return f(ctx, handle, method, args)
}

// Invoker is what proxies call through.
type Invoker interface {
	// Invoke calls a declared method (index >= 1) and returns its result buffer.
	Invoke(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) ([]byte, error)

	// Free issues the destructor call for handle. It never fails.
	Free(ctx context.Context, handle callbackrt.Handle)
}
