package runtime

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/callback-runtime/engine"
	"github.com/wippyai/callback-runtime/errors"
)

// Module is a compiled guest.
type Module struct {
	runtime      *Runtime
	wazeroModule *engine.WazeroModule
}

// LoadGuest compiles a wasm module implementing the callback ABI.
func (r *Runtime) LoadGuest(ctx context.Context, wasm []byte) (*Module, error) {
	eng, err := r.wasmEngine(ctx)
	if err != nil {
		return nil, err
	}

	wazeroModule, err := eng.LoadModule(ctx, wasm)
	if err != nil {
		return nil, err
	}

	return &Module{
		runtime:      r,
		wazeroModule: wazeroModule,
	}, nil
}

// LoadGuestFile reads and compiles a guest from disk.
func (r *Runtime) LoadGuestFile(ctx context.Context, path string) (*Module, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	return r.LoadGuest(ctx, wasm)
}

// Exports lists the functions the guest exports.
func (m *Module) Exports() []string {
	return m.wazeroModule.ExportNames()
}

func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	wazeroInstance, err := m.wazeroModule.Instantiate(ctx)
	if err != nil {
		return nil, err
	}

	r := m.runtime
	inst := &Instance{
		module:         m,
		wazeroInstance: wazeroInstance,
		dispatcher:     r.newDispatcher(wazeroInstance, "guest"),
	}

	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.instances[inst] = struct{}{}
	}
	r.mu.Unlock()

	if closed {
		_ = wazeroInstance.Close(ctx)
		return nil, errors.Closed(errors.PhaseRuntime, "runtime")
	}

	r.logger.Debug("guest instantiated", zap.Uint32("memory_bytes", wazeroInstance.MemorySize()))
	return inst, nil
}

// Close releases the compiled guest. Running instances are unaffected.
func (m *Module) Close(ctx context.Context) error {
	return m.wazeroModule.Close(ctx)
}
