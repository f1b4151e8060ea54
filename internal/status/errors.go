package status

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind identifies the category of a ping failure.
type Kind int

const (
	// KindBadParameter means the caller passed an invalid argument.
	KindBadParameter Kind = iota + 1
	// KindOS means a platform call failed.
	KindOS
	// KindIP means the reply carried a non-success ICMP status.
	KindIP
	// KindTimedOut means no reply arrived before the deadline.
	KindTimedOut
	// KindIOPending is an internal signal between a transport and the
	// completion bridge. It is never returned to callers.
	KindIOPending
	// KindDataSizeTooBig means the payload exceeds the platform ceiling.
	KindDataSizeTooBig
)

// String returns a short name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindBadParameter:
		return "bad_parameter"
	case KindOS:
		return "os_error"
	case KindIP:
		return "ip_error"
	case KindTimedOut:
		return "timed_out"
	case KindIOPending:
		return "io_pending"
	case KindDataSizeTooBig:
		return "data_size_too_big"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every ping operation.
type Error struct {
	Kind Kind

	// Param names the offending argument (KindBadParameter).
	Param string

	// Code is the native error code (KindOS) or IP status (KindIP).
	Code uint32

	// Message is the platform description of Code (KindOS).
	Message string

	// Max is the largest accepted payload size (KindDataSizeTooBig).
	Max int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBadParameter:
		return fmt.Sprintf("bad parameter: %s", e.Param)
	case KindOS:
		return fmt.Sprintf("os error %d: %s", e.Code, e.Message)
	case KindIP:
		if name := StatusName(e.Code); name != "" {
			return fmt.Sprintf("ip error %d: %s", e.Code, name)
		}
		return fmt.Sprintf("ip error %d", e.Code)
	case KindTimedOut:
		return "ping timed out"
	case KindIOPending:
		return "i/o pending"
	case KindDataSizeTooBig:
		return fmt.Sprintf("data size too big (max %d bytes)", e.Max)
	default:
		return "ping failed"
	}
}

// Is reports whether target is an *Error of the same kind. When target
// also carries a code, the codes must match too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

var (
	// ErrTimedOut matches any timeout error.
	ErrTimedOut = &Error{Kind: KindTimedOut}

	// ErrIOPending signals an outstanding asynchronous operation.
	ErrIOPending = &Error{Kind: KindIOPending}

	// ErrBadHeader matches replies rejected by the decoder.
	ErrBadHeader = &Error{Kind: KindIP, Code: BadHeader}
)

// BadParameter returns a KindBadParameter error naming param.
func BadParameter(param string) error {
	return &Error{Kind: KindBadParameter, Param: param}
}

// OSError returns a KindOS error.
func OSError(code uint32, message string) error {
	return &Error{Kind: KindOS, Code: code, Message: message}
}

// IPError returns a KindIP error.
func IPError(code IPStatus) error {
	return &Error{Kind: KindIP, Code: code}
}

// DataSizeTooBig returns a KindDataSizeTooBig error reporting the ceiling.
func DataSizeTooBig(max int) error {
	return &Error{Kind: KindDataSizeTooBig, Max: max}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsPending reports whether err is the internal pending signal.
func IsPending(err error) bool {
	return errors.Is(err, ErrIOPending)
}

// FromErrno maps an error from a system call into the ping taxonomy.
// Errors that are already *Error pass through unchanged.
func FromErrno(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch {
		case isWouldBlock(errno):
			return ErrIOPending
		case isTimeout(errno):
			return ErrTimedOut
		default:
			return OSError(uint32(errno), Message(uint32(errno)))
		}
	}

	return OSError(0, err.Error())
}
