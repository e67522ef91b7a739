package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode   Phase = "encode"   // native value to call buffer
	PhaseDecode   Phase = "decode"   // call buffer to native value
	PhaseDefine   Phase = "define"   // interface declaration
	PhaseDispatch Phase = "dispatch" // boundary crossing
	PhaseFree     Phase = "free"     // destructor call
	PhaseRegistry Phase = "registry" // handle registration and lookup
	PhaseRuntime  Phase = "runtime"  // runtime operations
	PhaseLoad     Phase = "load"     // guest module loading
	PhaseParse    Phase = "parse"    // WIT/config parsing
	PhaseConfig   Phase = "config"   // configuration validation
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindOverflow          Kind = "overflow"
	KindUnsupported       Kind = "unsupported"
	KindDeclaration       Kind = "declaration"
	KindDispatch          Kind = "dispatch"
	KindUnexpectedFailure Kind = "unexpected_failure"
	KindUseAfterFree      Kind = "use_after_free"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindClosed            Kind = "closed"
	KindAllocation        Kind = "allocation"
	KindInstantiation     Kind = "instantiation"
	KindShapeMismatch     Kind = "shape_mismatch"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	WireType string
	Detail   string
	Path     []string
	// Payload is the encoded error value returned by the foreign side.
	Payload []byte
	Handle  uint64
	Method  uint32
	// HasCall is set when Handle and Method identify the failed call.
	HasCall bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.HasCall {
		fmt.Fprintf(&b, " (handle %d, method %d)", e.Handle, e.Method)
	}

	if e.WireType != "" {
		b.WriteString(": type ")
		b.WriteString(e.WireType)
	}

	if e.Detail != "" {
		if e.WireType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// WireType sets the wire type name
func (b *Builder) WireType(t string) *Builder {
	b.err.WireType = t
	return b
}

// Call records the handle and method index of the failed call
func (b *Builder) Call(handle uint64, method uint32) *Builder {
	b.err.Handle = handle
	b.err.Method = method
	b.err.HasCall = true
	return b
}

// Payload sets the foreign error payload
func (b *Builder) Payload(p []byte) *Builder {
	b.err.Payload = p
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Encoding errors

// ShortBuffer reports a decode that needed more bytes than remain
func ShortBuffer(path []string, need, have int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("need %d bytes, have %d", need, have),
		Value:  need,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		WireType: targetType,
		Detail:   fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:    value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// TrailingBytes reports junk left in a buffer after a complete decode
func TrailingBytes(n int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("%d trailing bytes after value", n),
		Value:  n,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Dispatch errors

// Dispatch wraps an error result returned by the foreign side for one call
func Dispatch(handle uint64, method uint32, payload []byte) *Error {
	return &Error{
		Phase:   PhaseDispatch,
		Kind:    KindDispatch,
		Handle:  handle,
		Method:  method,
		HasCall: true,
		Payload: payload,
		Detail:  fmt.Sprintf("foreign error (%d byte payload)", len(payload)),
	}
}

// Unexpected reports a foreign panic, crash or protocol violation for one call
func Unexpected(handle uint64, method uint32, msg string, cause error) *Error {
	return &Error{
		Phase:   PhaseDispatch,
		Kind:    KindUnexpectedFailure,
		Handle:  handle,
		Method:  method,
		HasCall: true,
		Detail:  msg,
		Cause:   cause,
	}
}

// UseAfterFree reports a call on a handle whose free call was already issued
func UseAfterFree(handle uint64, method uint32) *Error {
	return &Error{
		Phase:   PhaseDispatch,
		Kind:    KindUseAfterFree,
		Handle:  handle,
		Method:  method,
		HasCall: true,
		Detail:  "handle already freed",
	}
}

// Declaration creates an interface declaration error
func Declaration(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseDefine,
		Kind:   KindDeclaration,
		Path:   path,
		Detail: detail,
	}
}

// Runtime package convenience constructors

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports use of a component after it was torn down
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates a guest instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate guest",
		Cause:  cause,
	}
}

// Load creates a guest loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Classification helpers

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsDispatch reports whether err is a foreign error result
func IsDispatch(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindDispatch
}

// IsUnexpected reports whether err is a foreign panic or crash
func IsUnexpected(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnexpectedFailure
}

// IsUseAfterFree reports whether err was caused by calling a freed handle
func IsUseAfterFree(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUseAfterFree
}

// IsEncoding reports whether err is an encode or decode failure
func IsEncoding(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase == PhaseEncode || e.Phase == PhaseDecode
	}
	return false
}

// PayloadOf returns the foreign error payload carried by err, if any
func PayloadOf(err error) ([]byte, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindDispatch {
		return e.Payload, true
	}
	return nil, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
