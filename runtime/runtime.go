package runtime

import (
	"context"
	goruntime "runtime"
	"sync"
	"weak"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/engine"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/foreign"
	"github.com/wippyai/callback-runtime/invoke"
	"github.com/wippyai/callback-runtime/metadata"
	"github.com/wippyai/callback-runtime/proxy"
)

// Config configures a Runtime. The zero value is usable.
type Config struct {
	Logger *zap.Logger

	// Metrics registers dispatcher metrics when non-nil.
	Metrics prometheus.Registerer

	// Engine configures the wasm engine created by the first LoadGuest.
	Engine *engine.Config

	// MaxConcurrent bounds calls inside each boundary; 0 means unbounded.
	MaxConcurrent int

	// Cleanup frees handles of proxies that become unreachable unclosed.
	Cleanup bool
}

type Runtime struct {
	cfg        Config
	logger     *zap.Logger
	metrics    *invoke.Metrics
	host       *foreign.Host
	dispatcher *invoke.Dispatcher
	interfaces *metadata.Registry
	engine     *engine.WazeroEngine
	proxies    map[weak.Pointer[proxy.Proxy]]*proxy.Proxy
	instances  map[*Instance]struct{}
	mu         sync.Mutex
	closed     bool
}

func New(ctx context.Context, cfg Config) (*Runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runtime{
		cfg:        cfg,
		logger:     logger,
		interfaces: metadata.NewRegistry(),
		proxies:    make(map[weak.Pointer[proxy.Proxy]]*proxy.Proxy),
		instances:  make(map[*Instance]struct{}),
	}
	if cfg.Metrics != nil {
		r.metrics = invoke.NewMetrics(cfg.Metrics)
	}

	r.host = foreign.NewHost(foreign.WithLogger(logger.Named("host")))
	r.dispatcher = r.newDispatcher(r.host, "host")

	logger.Debug("runtime created", zap.Int("max_concurrent", cfg.MaxConcurrent))
	return r, nil
}

func (r *Runtime) newDispatcher(b invoke.Boundary, name string) *invoke.Dispatcher {
	opts := []invoke.Option{
		invoke.WithLogger(r.logger.Named(name)),
		invoke.WithMaxConcurrent(r.cfg.MaxConcurrent),
	}
	if r.metrics != nil {
		opts = append(opts, invoke.WithMetrics(r.metrics))
	}
	return invoke.New(b, opts...)
}

// Host returns the in-process foreign runtime.
func (r *Runtime) Host() *foreign.Host {
	return r.host
}

// Invoker returns the dispatcher in front of Host.
func (r *Runtime) Invoker() invoke.Invoker {
	return r.dispatcher
}

// Interfaces returns the metadata registry.
func (r *Runtime) Interfaces() *metadata.Registry {
	return r.interfaces
}

// Define registers an interface declaration.
func (r *Runtime) Define(iface *metadata.Interface) error {
	return r.interfaces.Add(iface)
}

// DefineWIT parses and registers an interface declaration.
func (r *Runtime) DefineWIT(modulePath, name, witText string) (*metadata.Interface, error) {
	iface, err := metadata.ParseWIT(modulePath, name, witText)
	if err != nil {
		return nil, err
	}
	if err := r.interfaces.Add(iface); err != nil {
		return nil, err
	}
	return iface, nil
}

// RegisterImpl binds impl to iface and registers it with Host.
func (r *Runtime) RegisterImpl(iface *metadata.Interface, impl any) (callbackrt.Handle, error) {
	obj, err := Bind(iface, impl)
	if err != nil {
		return 0, err
	}
	if err := r.interfaces.Add(iface); err != nil {
		return 0, err
	}
	return r.host.Register(obj)
}

// NewProxy wraps a Host handle. The runtime frees it on Close if the caller
// has not. With Config.Cleanup the runtime holds the proxy weakly, so a
// leaked proxy is freed by the garbage collector instead.
func (r *Runtime) NewProxy(h callbackrt.Handle, opts ...proxy.Option) *proxy.Proxy {
	return r.track(r.dispatcher, h, opts)
}

func (r *Runtime) track(inv invoke.Invoker, h callbackrt.Handle, opts []proxy.Option) *proxy.Proxy {
	if r.cfg.Cleanup {
		opts = append(opts, proxy.WithCleanup())
	}
	opts = append(opts, proxy.OnClose(r.untrack))
	p := proxy.New(inv, h, opts...)
	wp := weak.Make(p)
	strong := p
	if r.cfg.Cleanup {
		strong = nil
	}

	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.proxies[wp] = strong
	}
	r.mu.Unlock()

	if closed {
		_ = p.Close()
		return p
	}
	if r.cfg.Cleanup {
		goruntime.AddCleanup(p, r.forget, wp)
	}
	return p
}

func (r *Runtime) untrack(p *proxy.Proxy) {
	r.forget(weak.Make(p))
}

func (r *Runtime) forget(wp weak.Pointer[proxy.Proxy]) {
	r.mu.Lock()
	delete(r.proxies, wp)
	r.mu.Unlock()
}

// LiveProxies returns the number of proxies not yet closed.
func (r *Runtime) LiveProxies() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

func (r *Runtime) wasmEngine(ctx context.Context) (*engine.WazeroEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.Closed(errors.PhaseRuntime, "runtime")
	}
	if r.engine == nil {
		eng, err := engine.NewWazeroEngine(ctx, r.cfg.Engine)
		if err != nil {
			return nil, errors.Load("create engine", err)
		}
		r.engine = eng
	}
	return r.engine, nil
}

// Close frees every live proxy, closes guest instances and the engine, then
// releases the foreign objects still registered with Host.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	proxies := make([]*proxy.Proxy, 0, len(r.proxies))
	for wp, p := range r.proxies {
		if p == nil {
			p = wp.Value()
		}
		// a reclaimed proxy is freed by its own cleanup
		if p != nil {
			proxies = append(proxies, p)
		}
	}
	instances := make([]*Instance, 0, len(r.instances))
	for inst := range r.instances {
		instances = append(instances, inst)
	}
	eng := r.engine
	r.mu.Unlock()

	var err error
	for _, p := range proxies {
		err = multierr.Append(err, p.Close())
	}
	for _, inst := range instances {
		err = multierr.Append(err, inst.Close(ctx))
	}
	if eng != nil {
		err = multierr.Append(err, eng.Close(ctx))
	}
	err = multierr.Append(err, r.host.Close())

	r.logger.Debug("runtime closed",
		zap.Int("proxies_freed", len(proxies)),
		zap.Int("instances", len(instances)),
		zap.Error(err))
	return err
}
