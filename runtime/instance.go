package runtime

import (
	"context"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/engine"
	"github.com/wippyai/callback-runtime/invoke"
	"github.com/wippyai/callback-runtime/proxy"
)

// Instance is a running guest with its own dispatcher.
type Instance struct {
	module         *Module
	wazeroInstance *engine.WazeroInstance
	dispatcher     *invoke.Dispatcher
}

// NewProxy wraps a handle owned by the guest.
func (i *Instance) NewProxy(h callbackrt.Handle, opts ...proxy.Option) *proxy.Proxy {
	return i.module.runtime.track(i.dispatcher, h, opts)
}

// Invoker returns the dispatcher in front of the guest.
func (i *Instance) Invoker() invoke.Invoker {
	return i.dispatcher
}

// Memory exposes the guest linear memory.
func (i *Instance) Memory() callbackrt.Memory {
	return i.wazeroInstance.Memory()
}

// Close closes the guest. Proxies still pointing at it fail with an
// unexpected failure afterwards.
func (i *Instance) Close(ctx context.Context) error {
	r := i.module.runtime
	r.mu.Lock()
	delete(r.instances, i)
	r.mu.Unlock()
	return i.wazeroInstance.Close(ctx)
}

// MemorySize returns the guest memory size in bytes.
func (i *Instance) MemorySize() uint32 {
	return i.wazeroInstance.MemorySize()
}
