package engine

import (
	"github.com/tetratelabs/wazero/api"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
)

// WazeroMemory is guest linear memory. Accesses outside it fail with an
// out_of_bounds error instead of trapping the host.
type WazeroMemory struct {
	mem api.Memory
}

func outOfBounds(op string, offset, length uint32) error {
	return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
		Detail("guest memory %s of %d bytes at %#x", op, length, offset).
		Build()
}

// Read returns a view of guest memory. The view is invalidated by the next
// guest call.
func (m *WazeroMemory) Read(offset, length uint32) ([]byte, error) {
	if data, ok := m.mem.Read(offset, length); ok {
		return data, nil
	}
	return nil, outOfBounds("read", offset, length)
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return outOfBounds("write", offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	if v, ok := m.mem.ReadUint32Le(offset); ok {
		return v, nil
	}
	return 0, outOfBounds("read", offset, 4)
}

func (m *WazeroMemory) WriteU32(offset, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return outOfBounds("write", offset, 4)
	}
	return nil
}

// WriteU64 zeroes or fills the result slot in one store.
func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return outOfBounds("write", offset, 8)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var (
	_ callbackrt.Memory      = (*WazeroMemory)(nil)
	_ callbackrt.MemorySizer = (*WazeroMemory)(nil)
)
