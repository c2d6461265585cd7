package wire

import (
	"errors"
	"fmt"
)

// Kind classifies an error by where it originated.
type Kind uint8

const (
	// KindUnknown is the class of errors that did not come from this SDK.
	KindUnknown Kind = iota

	// KindNetwork covers socket open and write failures.
	KindNetwork

	// KindProtocol covers malformed frames, oversized frames and
	// link-fatal frames.
	KindProtocol

	// KindState covers operations attempted in a state that forbids them.
	KindState

	// KindApplication covers receiver application start/stop failures and
	// launch confirmation timeouts.
	KindApplication

	// KindRemote covers replies whose status is not ok.
	KindRemote
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NETWORK"
	case KindProtocol:
		return "PROTOCOL"
	case KindState:
		return "STATE"
	case KindApplication:
		return "APPLICATION"
	case KindRemote:
		return "REMOTE"
	default:
		return "UNKNOWN"
	}
}

// Sentinel causes. They are usually wrapped in an *Error carrying the kind.
var (
	ErrNotConnected        = errors.New("not connected")
	ErrDisconnected        = errors.New("disconnected")
	ErrInvalidState        = errors.New("operation not permitted in current state")
	ErrFrameTooLarge       = errors.New("frame too large")
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrLinkFatal           = errors.New("link-fatal error")
	ErrSequenceExhausted   = errors.New("no free sequence id")
	ErrKeepAliveTimeout    = errors.New("keep-alive timeout")
	ErrRemoteStatus        = errors.New("remote error")
	ErrLaunchFailed        = errors.New("application launch failed")
	ErrLaunchTimeout       = errors.New("application launch timed out")
	ErrIncompatibleVersion = errors.New("incompatible protocol version")
)

// Error is an SDK error with its class, the operation that failed and,
// for remote and link-fatal errors, the status text sent by the receiver.
type Error struct {
	Kind   Kind
	Op     string
	Status string
	Err    error
}

// NewError wraps err with a kind and operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewStatusError wraps err with a kind, operation and receiver status.
func NewStatusError(kind Kind, op, status string, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

// Error implements error.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Status != "" {
		msg += fmt.Sprintf(" (status %q)", e.Status)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
