// Package testbed holds small guest modules for exercising the wasm boundary
// and the end-to-end tests that run them.
package testbed

// EchoGuest is a hand-assembled guest implementing the callback ABI.
//
// cb_invoke returns the argument buffer as the result. Method 2 reports
// StatusError with the arguments as the error payload, method 3 traps, and
// every other method, including the free call, succeeds. cb_alloc is a bump
// allocator over a single page starting at 1024; there is no cb_free.
var EchoGuest = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version

	// Type section: 0 = (i32) -> i32, 1 = (i64, i32, i32, i32, i32) -> i32
	0x01, 0x0f, 0x02,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x05, 0x7e, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,

	// Function section: cb_alloc uses type 0, cb_invoke type 1
	0x03, 0x03, 0x02, 0x00, 0x01,

	// Memory section: one page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// Global section: mut i32 heap = 1024
	0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b,

	// Export section
	0x07, 0x21, 0x03,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x08, 'c', 'b', '_', 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
	0x09, 'c', 'b', '_', 'i', 'n', 'v', 'o', 'k', 'e', 0x00, 0x01,

	// Code section
	0x0a, 0x2c, 0x02,
	// cb_alloc: old := heap; heap += size; return old
	0x0b, 0x00,
	0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00,
	0x0b,
	// cb_invoke
	0x1e, 0x00,
	0x20, 0x04, 0x20, 0x02, 0x36, 0x02, 0x00, // out[0] = args_ptr
	0x20, 0x04, 0x20, 0x03, 0x36, 0x02, 0x04, // out[1] = args_len
	0x20, 0x01, 0x41, 0x03, 0x46, 0x04, 0x40, 0x00, 0x0b, // if method == 3 { unreachable }
	0x20, 0x01, 0x41, 0x02, 0x46, // return method == 2
	0x0b,
}

// Guest method indices understood by EchoGuest.
const (
	EchoMethodOK    = 1
	EchoMethodError = 2
	EchoMethodTrap  = 3
)
