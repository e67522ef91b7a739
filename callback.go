package callbackrt

import "fmt"

// Handle names one foreign-side object instance. Handle 0 is never issued.
type Handle uint64

// MethodIndex selects the interface method a call dispatches to.
type MethodIndex uint32

// IdxFree is the method index of the destructor call.
const IdxFree MethodIndex = 0

// MethodIndexFor maps a zero-based declaration position to its wire index.
func MethodIndexFor(declared int) MethodIndex {
	return MethodIndex(declared + 1)
}

// Declared returns the zero-based declaration position, or -1 for the free call.
func (m MethodIndex) Declared() int {
	return int(m) - 1
}

// Status is the outcome code returned by the foreign side.
type Status uint8

const (
	StatusSuccess           Status = 0
	StatusError             Status = 1
	StatusUnexpectedFailure Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusUnexpectedFailure:
		return "unexpected_failure"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}
