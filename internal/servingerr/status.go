// Package servingerr implements predictgrid's error taxonomy: four error
// kinds (InvalidInputs, WorkerUnavailable, SystemError, Failed) carried as
// a single Status(Kind, message) value type.
package servingerr

import "fmt"

// Kind is one of the four error kinds a Status can carry.
type Kind int

const (
	// KindOK indicates success (zero value, error_code == 0).
	KindOK Kind = iota
	// KindInvalidInputs is a bad request shape, unknown servable/method/
	// version, or missing/ill-typed tensor field. Returned to the caller,
	// never retried.
	KindInvalidInputs
	// KindWorkerUnavailable is a worker in-flight failure or back-pressure
	// signal. The master re-queues the affected task transparently; it
	// only surfaces to the caller when no alternative worker exists.
	KindWorkerUnavailable
	// KindSystemError is an internal invariant violation, admission
	// overflow, or malformed worker reply. Logged at ERROR, never retried.
	KindSystemError
	// KindFailed is a generic request failure from worker-side validation
	// or execution, returned verbatim to the caller.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindInvalidInputs:
		return "INVALID_INPUTS"
	case KindWorkerUnavailable:
		return "WORKER_UNAVAILABLE"
	case KindSystemError:
		return "SYSTEM_ERROR"
	case KindFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Code maps a Kind to the wire-level error_code carried in ErrorMsg.
// WorkerUnavailable keeps the distinguished value -1 so MethodDispatcher
// can spot it by value alone.
func (k Kind) Code() int32 {
	switch k {
	case KindOK:
		return 0
	case KindWorkerUnavailable:
		return -1
	case KindInvalidInputs:
		return 1
	case KindSystemError:
		return 2
	case KindFailed:
		return 3
	default:
		return 2
	}
}

// Status pairs a Kind with a human-readable message.
type Status struct {
	Kind Kind
	Msg  string
}

func (s *Status) Error() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Msg)
}

// New builds a Status of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Status {
	return &Status{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// InvalidInputs builds a KindInvalidInputs status.
func InvalidInputs(format string, args ...interface{}) *Status {
	return New(KindInvalidInputs, format, args...)
}

// WorkerUnavailable builds a KindWorkerUnavailable status.
func WorkerUnavailable(format string, args ...interface{}) *Status {
	return New(KindWorkerUnavailable, format, args...)
}

// SystemError builds a KindSystemError status.
func SystemError(format string, args ...interface{}) *Status {
	return New(KindSystemError, format, args...)
}

// Failed builds a KindFailed status.
func Failed(format string, args ...interface{}) *Status {
	return New(KindFailed, format, args...)
}

// IsWorkerUnavailable reports whether err is a WorkerUnavailable status, or
// carries the distinguished WorkerUnavailable wire error_code.
func IsWorkerUnavailable(err error) bool {
	st, ok := err.(*Status)
	return ok && st.Kind == KindWorkerUnavailable
}
