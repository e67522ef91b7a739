// Package errors provides structured error types for the callback runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the field path, the wire type involved, the handle and
// method of the call that failed, and the foreign error payload when there is one.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
//		Path("args", "name").
//		WireType("string").
//		Detail("need %d bytes, have %d", 4, 1).
//		Build()
//
// Or use convenience constructors for the protocol's error taxonomy:
//
//	err := errors.ShortBuffer(path, 4, 1)           // encoding error
//	err := errors.Dispatch(handle, method, payload) // foreign error result
//	err := errors.Unexpected(handle, method, msg)   // foreign panic/crash
//	err := errors.UseAfterFree(handle, method)      // call on a freed proxy
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
