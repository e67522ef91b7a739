package proxy

import (
	"context"

	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/invoke"
)

// Invoke encodes arguments with args, calls the method at position idx and
// decodes the result with ret. A nil args sends an empty buffer.
func Invoke[R any](ctx context.Context, p *Proxy, idx int, ret codec.Converter[R], args func(*codec.Writer)) (R, error) {
	var zero R

	w := codec.NewWriter(64)
	if args != nil {
		args(w)
	}
	if err := w.Err(); err != nil {
		return zero, err
	}

	out, err := p.Call(ctx, idx, w.Bytes())
	if err != nil {
		return zero, err
	}
	return codec.Lift(ret, out)
}

// InvokeVoid is Invoke for methods without a result.
func InvokeVoid(ctx context.Context, p *Proxy, idx int, args func(*codec.Writer)) error {
	_, err := Invoke(ctx, p, idx, codec.Unit, args)
	return err
}

// ErrorAs decodes the foreign error payload carried by err.
// ok is false when err is not a foreign error result.
func ErrorAs[E any](err error, c codec.Converter[E]) (v E, ok bool, decodeErr error) {
	payload, isDispatch := errors.PayloadOf(err)
	if !isDispatch {
		return v, false, nil
	}
	v, decodeErr = codec.Lift(c, payload)
	return v, decodeErr == nil, decodeErr
}

// Converter reads callback interface values: an 8-byte handle becomes a new
// proxy passed to Wrap. Writing a callback interface back across the boundary
// is not supported.
type Converter[T any] struct {
	Invoker invoke.Invoker
	Wrap    func(*Proxy) T
	Options []Option
}

func (c Converter[T]) Write(w *codec.Writer, _ T) {
	w.Fail(errors.Unsupported(errors.PhaseEncode, "lowering a callback interface"))
}

func (c Converter[T]) Read(r *codec.Reader) (T, error) {
	h, err := codec.Handle.Read(r)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Wrap(New(c.Invoker, h, c.Options...)), nil
}
