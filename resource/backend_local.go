package resource

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrClosed    = errors.New("handle registry closed")
	ErrExhausted = errors.New("handle registry exhausted")
)

// LocalBackend is an in-memory arena of generation-tagged slots.
type LocalBackend struct {
	entries  []entry
	freeList []uint32
	live     int
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	gen   uint32
	valid bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	if n := len(b.freeList); n > 0 {
		slot := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		e := &b.entries[slot]
		e.value = value
		e.valid = true
		b.live++
		return makeHandle(slot, e.gen), nil
	}

	if len(b.entries) >= math.MaxUint32 {
		return 0, ErrExhausted
	}
	slot := uint32(len(b.entries))
	b.entries = append(b.entries, entry{value: value, valid: true})
	b.live++
	return makeHandle(slot, 0), nil
}

func (b *LocalBackend) lookup(handle Handle) (*entry, bool) {
	slot, gen, ok := splitHandle(handle)
	if !ok || int(slot) >= len(b.entries) {
		return nil, false
	}
	e := &b.entries[slot]
	if !e.valid || e.gen != gen {
		return nil, false
	}
	return e, true
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Drop invalidates a handle and returns its value.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, false
	}

	value := e.value
	e.value = nil
	e.valid = false
	b.live--

	// a slot whose generation would wrap is retired so old handles stay dead
	if e.gen < math.MaxUint32 {
		e.gen++
		slot, _, _ := splitHandle(handle)
		b.freeList = append(b.freeList, slot)
	}

	return value, true
}

// Close invalidates all handles and returns the values that were live.
func (b *LocalBackend) Close() []any {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var live []any
	for i := range b.entries {
		if b.entries[i].valid {
			live = append(live, b.entries[i].value)
			b.entries[i].valid = false
			b.entries[i].value = nil
		}
	}

	b.entries = nil
	b.freeList = nil
	b.live = 0
	return live
}

// Len returns the number of live handles.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live
}

// Each iterates over all live handles.
func (b *LocalBackend) Each(fn func(Handle, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i), e.gen), e.value) {
				break
			}
		}
	}
}

var _ Backend = (*LocalBackend)(nil)
