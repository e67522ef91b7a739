package engine

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
)

// WazeroInstance is a running guest. It implements invoke.Boundary.
type WazeroInstance struct {
	module   *WazeroModule
	instance api.Module
	invokeFn api.Function
	memory   *WazeroMemory
	alloc    *wazeroAllocator
	stack    []uint64
	mu       sync.Mutex
}

// Memory returns the guest linear memory.
func (i *WazeroInstance) Memory() callbackrt.Memory {
	return i.memory
}

// MemorySize returns the guest memory size in bytes.
func (i *WazeroInstance) MemorySize() uint32 {
	if i.memory == nil {
		return 0
	}
	return i.memory.Size()
}

// InvokeCallback copies args into guest memory, calls the invoke export and
// copies the result out. Traps are reported as StatusUnexpectedFailure; a
// non-nil error means the host could not complete the exchange.
func (i *WazeroInstance) InvokeCallback(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (callbackrt.Status, []byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.instance == nil {
		return 0, nil, errors.Closed(errors.PhaseRuntime, "guest instance")
	}
	if len(args) > math.MaxUint32-outSlotSize {
		return 0, nil, errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Call(uint64(handle), uint32(method)).
			Detail("argument buffer of %d bytes does not fit guest memory", len(args)).
			Build()
	}

	size := uint32(outSlotSize + len(args))
	region, err := i.alloc.Alloc(ctx, size)
	if err != nil {
		return 0, nil, errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "allocate call region")
	}
	defer i.alloc.Free(ctx, region, size)

	outPtr, argsPtr := region, region+outSlotSize
	if err := i.memory.WriteU64(outPtr, 0); err != nil {
		return 0, nil, err
	}
	if len(args) > 0 {
		if err := i.memory.Write(argsPtr, args); err != nil {
			return 0, nil, err
		}
	}

	i.stack[0] = uint64(handle)
	i.stack[1] = uint64(method)
	i.stack[2] = uint64(argsPtr)
	i.stack[3] = uint64(len(args))
	i.stack[4] = uint64(outPtr)
	if err := i.invokeFn.CallWithStack(ctx, i.stack); err != nil {
		Logger().Debug("guest trapped",
			zap.Uint64("handle", uint64(handle)),
			zap.Uint32("method", uint32(method)),
			zap.Error(err))
		return callbackrt.StatusUnexpectedFailure, []byte(err.Error()), nil
	}

	code := uint32(i.stack[0])
	if code > math.MaxUint8 {
		return callbackrt.StatusUnexpectedFailure, []byte(fmt.Sprintf("guest returned status %d", code)), nil
	}

	resPtr, err := i.memory.ReadU32(outPtr)
	if err != nil {
		return 0, nil, err
	}
	resLen, err := i.memory.ReadU32(outPtr + 4)
	if err != nil {
		return 0, nil, err
	}

	var out []byte
	if resLen > 0 {
		view, err := i.memory.Read(resPtr, resLen)
		if err != nil {
			return 0, nil, err
		}
		// the view aliases guest memory, which the next call may overwrite
		out = slices.Clone(view)
		// results outside the call region belong to the guest allocator
		if resPtr < region || resPtr >= region+size {
			i.alloc.Free(ctx, resPtr, resLen)
		}
	}

	return callbackrt.Status(code), out, nil
}

// Close closes the guest instance. Later calls fail with a closed error.
func (i *WazeroInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var err error
	if i.instance != nil {
		err = multierr.Append(err, i.instance.Close(ctx))
		i.instance = nil
	}
	i.invokeFn = nil
	i.alloc = nil
	return err
}

type wazeroAllocator struct {
	allocFn  api.Function
	freeFn   api.Function
	stackBuf []uint64
}

func (a *wazeroAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	a.stackBuf[0] = uint64(size)
	if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
		return 0, err
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 {
		return 0, fmt.Errorf("guest allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

func (a *wazeroAllocator) Free(ctx context.Context, ptr, size uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	if err := a.freeFn.CallWithStack(ctx, a.stackBuf[:2]); err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// Compile-time check that wazeroAllocator implements callbackrt.Allocator
var _ callbackrt.Allocator = (*wazeroAllocator)(nil)
