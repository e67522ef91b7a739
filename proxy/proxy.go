package proxy

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/invoke"
	"github.com/wippyai/callback-runtime/metadata"
)

// Proxy is safe for concurrent use.
type Proxy struct {
	inv     invoke.Invoker
	iface   *metadata.Interface
	onClose func(*Proxy)
	drained chan struct{}
	cleanup *runtime.Cleanup
	handle  callbackrt.Handle
	once    sync.Once

	inflight atomic.Int64
	closed   atomic.Bool
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithInterface attaches the declaration the handle implements, enabling
// CallByName and index bounds checks.
func WithInterface(iface *metadata.Interface) Option {
	return func(p *Proxy) {
		p.iface = iface
	}
}

// WithCleanup frees the handle when the proxy becomes unreachable without
// having been closed.
func WithCleanup() Option {
	return func(p *Proxy) {
		c := runtime.AddCleanup(p, freeLeaked, leaked{inv: p.inv, handle: p.handle})
		p.cleanup = &c
	}
}

// OnClose registers fn to run once after the free call was issued.
func OnClose(fn func(*Proxy)) Option {
	return func(p *Proxy) {
		p.onClose = fn
	}
}

type leaked struct {
	inv    invoke.Invoker
	handle callbackrt.Handle
}

func freeLeaked(l leaked) {
	l.inv.Free(context.Background(), l.handle)
}

// New wraps handle. The proxy takes ownership: closing it frees the handle.
func New(inv invoke.Invoker, handle callbackrt.Handle, opts ...Option) *Proxy {
	p := &Proxy{
		inv:     inv,
		handle:  handle,
		drained: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle returns the wrapped handle. It stays readable after Close.
func (p *Proxy) Handle() callbackrt.Handle {
	return p.handle
}

// Interface returns the attached declaration, or nil.
func (p *Proxy) Interface() *metadata.Interface {
	return p.iface
}

// Closed reports whether Close has started.
func (p *Proxy) Closed() bool {
	return p.closed.Load()
}

// Call dispatches the method at zero-based declaration position idx.
func (p *Proxy) Call(ctx context.Context, idx int, args []byte) ([]byte, error) {
	method := callbackrt.MethodIndexFor(idx)
	if idx < 0 || (p.iface != nil && idx >= p.iface.NumMethods()) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Call(uint64(p.handle), uint32(method)).
			Detail("no declared method at position %d", idx).
			Build()
	}

	if !p.enter() {
		return nil, errors.UseAfterFree(uint64(p.handle), uint32(method))
	}
	defer p.leave()

	return p.inv.Invoke(ctx, p.handle, method, args)
}

// CallByName dispatches a method of the attached interface.
func (p *Proxy) CallByName(ctx context.Context, name string, args []byte) ([]byte, error) {
	if p.iface == nil {
		return nil, errors.NotInitialized(errors.PhaseDispatch, "proxy interface")
	}
	method, ok := p.iface.MethodIndex(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "method", name)
	}
	return p.Call(ctx, method.Declared(), args)
}

// Close issues the free call. Concurrent and repeated calls return after the
// single free has been issued. Calling Close from inside a call on the same
// proxy deadlocks. It always returns nil.
func (p *Proxy) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		for p.inflight.Load() != 0 {
			<-p.drained
		}
		if p.cleanup != nil {
			p.cleanup.Stop()
		}
		p.inv.Free(context.Background(), p.handle)
		if p.onClose != nil {
			p.onClose(p)
		}
	})
	return nil
}

func (p *Proxy) enter() bool {
	p.inflight.Add(1)
	if p.closed.Load() {
		p.leave()
		return false
	}
	return true
}

func (p *Proxy) leave() {
	if p.inflight.Add(-1) == 0 && p.closed.Load() {
		select {
		case p.drained <- struct{}{}:
		default:
		}
	}
}
