// Package engine runs a WebAssembly guest as the foreign side of callback
// interfaces.
//
// This package wraps wazero. A guest module exports a linear memory and two
// functions:
//
//	cb_alloc(size i32) -> i32
//	cb_invoke(handle i64, method i32, args_ptr i32, args_len i32, out_ptr i32) -> i32
//
// The host allocates one region per call holding an 8-byte result slot
// followed by the argument bytes, then calls cb_invoke. The return value is
// the status code; the guest writes (result_ptr u32, result_len u32) little
// endian at out_ptr. When the guest also exports cb_free(ptr i32, len i32),
// the host releases the call region after the call, and the result buffer
// too when it lies outside that region.
//
// # Architecture
//
//	WazeroEngine   - owns the wazero runtime and its compiled modules
//	WazeroModule   - a compiled guest with validated exports
//	WazeroInstance - a running guest; implements invoke.Boundary
//
// A guest trap surfaces as StatusUnexpectedFailure with the trap message as
// the diagnostic. A wazero module instance is not safe for concurrent calls,
// so WazeroInstance serializes InvokeCallback internally.
package engine
