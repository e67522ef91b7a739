package foreign

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/resource"
)

// Host owns a handle registry and dispatches boundary calls to the objects
// registered in it.
type Host struct {
	registry *resource.Registry
	logger   *zap.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger used for panics and unknown handles.
func WithLogger(l *zap.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRegistry makes the host dispatch through an existing registry.
func WithRegistry(r *resource.Registry) HostOption {
	return func(h *Host) {
		if r != nil {
			h.registry = r
		}
	}
}

// NewHost creates a host with its own registry.
func NewHost(opts ...HostOption) *Host {
	h := &Host{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = resource.NewRegistry()
	}
	return h
}

// Registry returns the handle registry.
func (h *Host) Registry() *resource.Registry {
	return h.registry
}

// Register makes obj reachable under a new handle.
func (h *Host) Register(obj Object) (callbackrt.Handle, error) {
	if obj == nil {
		return 0, errors.New("foreign: nil object")
	}
	return h.registry.Register(obj)
}

// InvokeCallback is the boundary surface: it runs one call and reports its
// status. Method 0 releases the handle. The returned error is always nil; all
// outcomes travel in the status and buffer.
func (h *Host) InvokeCallback(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (status callbackrt.Status, out []byte, err error) {
	if method == callbackrt.IdxFree {
		if _, ok := h.registry.Release(handle); !ok {
			h.logger.Debug("free of unknown handle", zap.Uint64("handle", uint64(handle)))
			return callbackrt.StatusError, []byte(fmt.Sprintf("unknown handle %d", handle)), nil
		}
		return callbackrt.StatusSuccess, nil, nil
	}

	v, ok := h.registry.Lookup(handle)
	if !ok {
		return callbackrt.StatusUnexpectedFailure, []byte(fmt.Sprintf("unknown handle %d", handle)), nil
	}
	obj, ok := v.(Object)
	if !ok {
		return callbackrt.StatusUnexpectedFailure, []byte(fmt.Sprintf("handle %d is not a callback object", handle)), nil
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("callback panicked",
				zap.Uint64("handle", uint64(handle)),
				zap.Uint32("method", uint32(method)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			status = callbackrt.StatusUnexpectedFailure
			out = []byte(fmt.Sprint(r))
			err = nil
		}
	}()

	result, callErr := obj.CallMethod(ctx, method, args)
	if callErr != nil {
		var ce *CallError
		if errors.As(callErr, &ce) {
			return callbackrt.StatusError, ce.Payload, nil
		}
		return callbackrt.StatusUnexpectedFailure, []byte(callErr.Error()), nil
	}
	return callbackrt.StatusSuccess, result, nil
}

// Close releases every registered object.
func (h *Host) Close() error {
	return h.registry.Close()
}
