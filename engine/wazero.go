package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/callback-runtime/errors"
)

// WazeroEngine compiles and instantiates guest modules.
type WazeroEngine struct {
	runtime wazero.Runtime
	cfg     Config
	modules map[*WazeroModule]struct{}
	mu      sync.Mutex
	closed  bool
}

// Config holds configuration for engine creation
type Config struct {
	// AllocExport, InvokeExport and FreeExport name the guest ABI exports.
	// Empty values select the defaults.
	AllocExport  string
	InvokeExport string
	FreeExport   string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

func (c Config) withDefaults() Config {
	if c.AllocExport == "" {
		c.AllocExport = DefaultAllocExport
	}
	if c.InvokeExport == "" {
		c.InvokeExport = DefaultInvokeExport
	}
	if c.FreeExport == "" {
		c.FreeExport = DefaultFreeExport
	}
	return c
}

// NewWazeroEngine creates a new wazero-based engine. cfg may be nil.
func NewWazeroEngine(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	return &WazeroEngine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     c,
		modules: make(map[*WazeroModule]struct{}),
	}, nil
}

// Config returns the effective configuration.
func (e *WazeroEngine) Config() Config {
	return e.cfg
}

// LoadModule compiles a guest and checks that it exports the callback ABI.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.Closed(errors.PhaseLoad, "engine")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}

	m := &WazeroModule{engine: e, compiled: compiled}
	if err := m.checkExports(); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = compiled.Close(ctx)
		return nil, errors.Closed(errors.PhaseLoad, "engine")
	}
	e.modules[m] = struct{}{}
	e.mu.Unlock()

	Logger().Debug("guest module loaded",
		zap.Int("size", len(wasmBytes)),
		zap.Bool("has_free", m.hasFree))
	return m, nil
}

// Close releases every compiled module and the runtime, which also closes
// all instances.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	modules := e.modules
	e.modules = nil
	e.mu.Unlock()

	var err error
	for m := range modules {
		err = multierr.Append(err, m.compiled.Close(ctx))
	}
	return multierr.Append(err, e.runtime.Close(ctx))
}

// NumModules returns the number of compiled modules not yet closed.
func (e *WazeroEngine) NumModules() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.modules)
}

// WazeroModule is a compiled guest module.
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
	hasFree  bool
}

// Close releases the compiled code. Instances created earlier keep running;
// new instantiations fail. Close is idempotent.
func (m *WazeroModule) Close(ctx context.Context) error {
	e := m.engine
	e.mu.Lock()
	_, live := e.modules[m]
	delete(e.modules, m)
	e.mu.Unlock()

	if !live {
		return nil
	}
	return m.compiled.Close(ctx)
}

func (m *WazeroModule) closed() bool {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	_, live := e.modules[m]
	return !live
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name string
}

func (m *WazeroModule) checkExports() error {
	cfg := m.engine.cfg

	if len(m.compiled.ExportedMemories()) == 0 {
		return errors.Load("guest exports no memory", nil)
	}

	funcs := m.compiled.ExportedFunctions()
	for _, want := range []struct {
		sig  signature
		name string
	}{
		{allocSig, cfg.AllocExport},
		{invokeSig, cfg.InvokeExport},
	} {
		def, ok := funcs[want.name]
		if !ok {
			return errors.Load("guest does not export "+want.name, nil)
		}
		if err := want.sig.check(want.name, def); err != nil {
			return errors.Load("guest ABI mismatch", err)
		}
	}

	if def, ok := funcs[cfg.FreeExport]; ok {
		if err := freeSig.check(cfg.FreeExport, def); err != nil {
			return errors.Load("guest ABI mismatch", err)
		}
		m.hasFree = true
	}
	return nil
}

// ExportNames returns the names of the exported functions.
func (m *WazeroModule) ExportNames() []string {
	funcs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	return names
}

func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	return m.InstantiateWithConfig(ctx, nil)
}

// InstantiateWithConfig creates an instance with custom configuration
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	if m.closed() {
		return nil, errors.Closed(errors.PhaseLoad, "guest module")
	}
	modConfig := wazero.NewModuleConfig()
	if cfg != nil && cfg.Name != "" {
		modConfig = modConfig.WithName(cfg.Name)
	} else {
		modConfig = modConfig.WithName("") // anonymous for parallel instantiation
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	ecfg := m.engine.cfg
	inst := &WazeroInstance{
		module:   m,
		instance: instance,
		invokeFn: instance.ExportedFunction(ecfg.InvokeExport),
		stack:    make([]uint64, 5),
	}

	inst.memory = &WazeroMemory{mem: instance.Memory()}

	inst.alloc = &wazeroAllocator{
		allocFn:  instance.ExportedFunction(ecfg.AllocExport),
		stackBuf: make([]uint64, 2),
	}
	if m.hasFree {
		inst.alloc.freeFn = instance.ExportedFunction(ecfg.FreeExport)
	}

	return inst, nil
}
