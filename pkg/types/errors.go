package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the network core
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfiguration is a fatal usage or setup mistake
	KindConfiguration
	// KindConnection is a recoverable transport-level failure
	KindConnection
	// KindInvalidPacket is malformed or unattributable input
	KindInvalidPacket
	// KindUnsupported is an operation the receiver never supports
	KindUnsupported
)

// String returns string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindConnection:
		return "connection error"
	case KindInvalidPacket:
		return "invalid packet"
	case KindUnsupported:
		return "unsupported operation"
	default:
		return "unknown error"
	}
}

var (
	ErrEncryptHookMissing = errors.New("encryption enabled but no encrypt function configured")
	ErrDecryptHookMissing = errors.New("encryption enabled but no decrypt function configured")
	ErrNotConnected       = errors.New("not connected yet")
	ErrAlreadyStarted     = errors.New("channel already started")
	ErrNotStarted         = errors.New("channel not started")
	ErrUndersizedPacket   = errors.New("packet shorter than envelope header")
	ErrUnsupported        = errors.New("operation not supported in this mode")
	ErrConnectionFailed   = errors.New("connection failed")
)

// Error carries an ErrorKind alongside the operation that failed
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements error
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind and op
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ConfigurationError wraps err as KindConfiguration
func ConfigurationError(op string, err error) error {
	return NewError(KindConfiguration, op, err)
}

// ConnectionError wraps err as KindConnection
func ConnectionError(op string, err error) error {
	return NewError(KindConnection, op, err)
}

// InvalidPacketError wraps err as KindInvalidPacket
func InvalidPacketError(op string, err error) error {
	return NewError(KindInvalidPacket, op, err)
}

// UnsupportedError wraps ErrUnsupported as KindUnsupported
func UnsupportedError(op string) error {
	return NewError(KindUnsupported, op, ErrUnsupported)
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
