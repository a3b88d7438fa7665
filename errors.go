package wormhole

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies every failure surfaced by this package. No error
// from a lower layer crosses the API boundary unclassified.
type ErrorKind uint8

const (
	// ErrorKindConnectionFailed indicates the rendezvous server or key
	// exchange could not be reached or completed.
	ErrorKindConnectionFailed ErrorKind = iota
	// ErrorKindInvalidCode indicates a malformed wormhole code.
	ErrorKindInvalidCode
	// ErrorKindTransferFailed indicates the offer negotiation or the byte
	// stream failed.
	ErrorKindTransferFailed
	// ErrorKindCancelled indicates the operation was cancelled.
	ErrorKindCancelled
	// ErrorKindFileNotFound indicates the source file does not exist.
	ErrorKindFileNotFound
	// ErrorKindIoError indicates a local filesystem failure.
	ErrorKindIoError
	// ErrorKindProtocolError indicates the peer violated the protocol.
	ErrorKindProtocolError
	// ErrorKindNoActiveSession indicates the session phase does not permit
	// the requested operation.
	ErrorKindNoActiveSession
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnectionFailed:
		return "ConnectionFailed"
	case ErrorKindInvalidCode:
		return "InvalidCode"
	case ErrorKindTransferFailed:
		return "TransferFailed"
	case ErrorKindCancelled:
		return "Cancelled"
	case ErrorKindFileNotFound:
		return "FileNotFound"
	case ErrorKindIoError:
		return "IoError"
	case ErrorKindProtocolError:
		return "ProtocolError"
	case ErrorKindNoActiveSession:
		return "NoActiveSession"
	default:
		return "Unknown"
	}
}

// Error is the failure type surfaced by every Client operation. Detail
// distinguishes network failure from protocol failure from local I/O, so a
// caller can tell "wrong code" from "network down" from "disk full".
type Error struct {
	Kind   ErrorKind
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case ErrorKindConnectionFailed:
		return "Connection failed: " + e.Detail
	case ErrorKindInvalidCode:
		return "Invalid code: " + e.Detail
	case ErrorKindTransferFailed:
		return "Transfer failed: " + e.Detail
	case ErrorKindCancelled:
		return "Operation cancelled"
	case ErrorKindFileNotFound:
		return "File not found: " + e.Detail
	case ErrorKindIoError:
		return "IO error: " + e.Detail
	case ErrorKindProtocolError:
		return "Protocol error: " + e.Detail
	case ErrorKindNoActiveSession:
		return "No active wormhole session"
	default:
		return fmt.Sprintf("Unknown error: %s", e.Detail)
	}
}

// Is matches errors of the same kind, so callers can compare against the
// package sentinels with errors.Is regardless of detail text.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel values for the detail-free kinds.
var (
	// ErrCancelled is returned when an operation is cancelled.
	ErrCancelled = &Error{Kind: ErrorKindCancelled}
	// ErrNoActiveSession is returned when the session phase does not
	// permit the requested operation.
	ErrNoActiveSession = &Error{Kind: ErrorKindNoActiveSession}
)

func connectionFailed(err error) *Error {
	return &Error{Kind: ErrorKindConnectionFailed, Detail: err.Error()}
}

func invalidCode(code string) *Error {
	return &Error{Kind: ErrorKindInvalidCode, Detail: code}
}

func transferFailed(err error) *Error {
	return &Error{Kind: ErrorKindTransferFailed, Detail: err.Error()}
}

func fileNotFound(path string) *Error {
	return &Error{Kind: ErrorKindFileNotFound, Detail: path}
}

func ioError(err error) *Error {
	return &Error{Kind: ErrorKindIoError, Detail: err.Error()}
}

func protocolError(detail string) *Error {
	return &Error{Kind: ErrorKindProtocolError, Detail: detail}
}

// cancelledOr maps context cancellation to ErrCancelled and everything
// else through wrap.
func cancelledOr(err error, wrap func(error) *Error) *Error {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return wrap(err)
}
