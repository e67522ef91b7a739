package invoke

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
)

// Dispatcher implements Invoker on top of a Boundary.
type Dispatcher struct {
	boundary Boundary
	logger   *zap.Logger
	sem      *semaphore.Weighted
	metrics  *Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSerialized lets one call at a time reach the boundary.
func WithSerialized() Option {
	return WithMaxConcurrent(1)
}

// WithMaxConcurrent bounds the number of calls inside the boundary.
// n <= 0 removes the bound.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		} else {
			d.sem = nil
		}
	}
}

// WithMetrics records call counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher.
func New(b Boundary, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		boundary: b,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke calls a declared method and maps the foreign status to a result.
func (d *Dispatcher) Invoke(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) ([]byte, error) {
	if method == callbackrt.IdxFree {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Call(uint64(handle), uint32(method)).
			Detail("method index 0 is reserved for free").
			Build()
	}
	if handle == 0 {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Call(0, uint32(method)).
			Detail("handle 0 is never valid").
			Build()
	}

	start := time.Now()
	status, out, err := d.cross(ctx, handle, method, args)
	if err != nil {
		d.metrics.observe(method, outcomeTransport, time.Since(start))
		d.logger.Debug("boundary crossing failed",
			zap.Uint64("handle", uint64(handle)),
			zap.Uint32("method", uint32(method)),
			zap.Error(err))
		return nil, errors.Unexpected(uint64(handle), uint32(method), "boundary crossing failed", err)
	}

	switch status {
	case callbackrt.StatusSuccess:
		d.metrics.observe(method, outcomeSuccess, time.Since(start))
		return out, nil
	case callbackrt.StatusError:
		d.metrics.observe(method, outcomeError, time.Since(start))
		return nil, errors.Dispatch(uint64(handle), uint32(method), out)
	case callbackrt.StatusUnexpectedFailure:
		d.metrics.observe(method, outcomeUnexpected, time.Since(start))
		msg := string(out)
		if msg == "" {
			msg = "foreign side failed without diagnostic"
		}
		d.logger.Debug("unexpected foreign failure",
			zap.Uint64("handle", uint64(handle)),
			zap.Uint32("method", uint32(method)),
			zap.String("diagnostic", msg))
		return nil, errors.Unexpected(uint64(handle), uint32(method), msg, nil)
	default:
		d.metrics.observe(method, outcomeUnexpected, time.Since(start))
		return nil, errors.Unexpected(uint64(handle), uint32(method), fmt.Sprintf("unknown status code %d", uint8(status)), nil)
	}
}

// Free issues the destructor call. Its outcome is not observable: errors and
// panics are logged and dropped.
func (d *Dispatcher) Free(ctx context.Context, handle callbackrt.Handle) {
	start := time.Now()
	status, out, err := d.cross(ctx, handle, callbackrt.IdxFree, nil)
	d.metrics.observe(callbackrt.IdxFree, outcomeFree, time.Since(start))

	switch {
	case err != nil:
		d.logger.Debug("free crossing failed", zap.Uint64("handle", uint64(handle)), zap.Error(err))
	case status != callbackrt.StatusSuccess:
		d.logger.Debug("free reported failure",
			zap.Uint64("handle", uint64(handle)),
			zap.Stringer("status", status),
			zap.ByteString("diagnostic", out))
	}
}

func (d *Dispatcher) cross(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (status callbackrt.Status, out []byte, err error) {
	if d.sem != nil {
		// calls are not cancellable, so waiting for a slot ignores ctx cancellation
		if err := d.sem.Acquire(context.WithoutCancel(ctx), 1); err != nil {
			return 0, nil, err
		}
		defer d.sem.Release(1)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("boundary panicked",
				zap.Uint64("handle", uint64(handle)),
				zap.Uint32("method", uint32(method)),
				zap.Any("panic", r))
			status, out, err = 0, nil, fmt.Errorf("boundary panic: %v", r)
		}
	}()

	return d.boundary.InvokeCallback(ctx, handle, method, args)
}
