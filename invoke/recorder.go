package invoke

import (
	"context"
	"slices"
	"sync"

	callbackrt "github.com/wippyai/callback-runtime"
)

// Crossing is one recorded boundary call.
type Crossing struct {
	Args   []byte
	Handle callbackrt.Handle
	Method callbackrt.MethodIndex
}

// Recorder wraps a Boundary and keeps a copy of every crossing.
type Recorder struct {
	next      Boundary
	crossings []Crossing
	mu        sync.Mutex
}

// NewRecorder wraps next.
func NewRecorder(next Boundary) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) InvokeCallback(ctx context.Context, handle callbackrt.Handle, method callbackrt.MethodIndex, args []byte) (callbackrt.Status, []byte, error) {
	r.mu.Lock()
	r.crossings = append(r.crossings, Crossing{
		Handle: handle,
		Method: method,
		Args:   slices.Clone(args),
	})
	r.mu.Unlock()
	return r.next.InvokeCallback(ctx, handle, method, args)
}

// Crossings returns a snapshot of the recorded calls in arrival order.
func (r *Recorder) Crossings() []Crossing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.crossings)
}

// Count returns how many crossings used handle and method.
func (r *Recorder) Count(handle callbackrt.Handle, method callbackrt.MethodIndex) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.crossings {
		if c.Handle == handle && c.Method == method {
			n++
		}
	}
	return n
}
