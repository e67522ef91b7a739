package foreign

import (
	"context"
	"errors"
	"fmt"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
)

// ErrNoSuchMethod is returned for a method index the object does not declare.
var ErrNoSuchMethod = errors.New("no such method")

// Object is a foreign-side interface implementation.
type Object interface {
	// CallMethod runs the method with wire index method (1-based).
	CallMethod(ctx context.Context, method callbackrt.MethodIndex, args []byte) ([]byte, error)
}

// MethodFunc implements one interface method over raw buffers.
type MethodFunc func(ctx context.Context, args []byte) ([]byte, error)

// Methods implements Object with one function per declared method, in
// declaration order.
type Methods []MethodFunc

func (m Methods) CallMethod(ctx context.Context, method callbackrt.MethodIndex, args []byte) ([]byte, error) {
	i := method.Declared()
	if i < 0 || i >= len(m) || m[i] == nil {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoSuchMethod, method, len(m))
	}
	return m[i](ctx, args)
}

// CallError is a typed error result. Its payload is returned to the caller
// with StatusError.
type CallError struct {
	Payload []byte
}

func (e *CallError) Error() string {
	return fmt.Sprintf("callback error (%d byte payload)", len(e.Payload))
}

// Fail returns a CallError carrying payload.
func Fail(payload []byte) error {
	return &CallError{Payload: payload}
}

// FailWith encodes v with c and returns it as a CallError.
func FailWith[T any](c codec.Converter[T], v T) error {
	buf, err := codec.Lower(c, v)
	if err != nil {
		return err
	}
	return &CallError{Payload: buf}
}

// Method0 adapts a function without arguments.
func Method0[R any](ret codec.Converter[R], fn func(ctx context.Context) (R, error)) MethodFunc {
	return func(ctx context.Context, args []byte) ([]byte, error) {
		r := codec.NewReader(args)
		if err := r.Finish(); err != nil {
			return nil, err
		}
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return codec.Lower(ret, out)
	}
}

// Method1 adapts a function taking one argument.
func Method1[A, R any](a codec.Converter[A], ret codec.Converter[R], fn func(ctx context.Context, a A) (R, error)) MethodFunc {
	return func(ctx context.Context, args []byte) ([]byte, error) {
		r := codec.NewReader(args)
		av, err := a.Read(r)
		if err != nil {
			return nil, err
		}
		if err := r.Finish(); err != nil {
			return nil, err
		}
		out, err := fn(ctx, av)
		if err != nil {
			return nil, err
		}
		return codec.Lower(ret, out)
	}
}

// Method2 adapts a function taking two arguments.
func Method2[A, B, R any](a codec.Converter[A], b codec.Converter[B], ret codec.Converter[R], fn func(ctx context.Context, a A, b B) (R, error)) MethodFunc {
	return func(ctx context.Context, args []byte) ([]byte, error) {
		r := codec.NewReader(args)
		av, err := a.Read(r)
		if err != nil {
			return nil, err
		}
		bv, err := b.Read(r)
		if err != nil {
			return nil, err
		}
		if err := r.Finish(); err != nil {
			return nil, err
		}
		out, err := fn(ctx, av, bv)
		if err != nil {
			return nil, err
		}
		return codec.Lower(ret, out)
	}
}
