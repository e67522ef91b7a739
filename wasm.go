package callbackrt

import "context"

// Memory is the linear memory of a wasm guest acting as the foreign runtime.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of guest memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator reserves guest memory for argument buffers.
type Allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
}
