package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorInvalidArgument
	ErrorIO
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTransport:
		return "Transport error"
	case ErrorProtocol:
		return "Protocol error"
	case ErrorInvalidArgument:
		return "Invalid argument"
	case ErrorIO:
		return "I/O error"
	default:
		return "Unknown error"
	}
}

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTimeout
	TransportErrorShortRead
	TransportErrorSocketCloseFailure
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorSocketCreateFailure:
		return "socket creation failed"
	case TransportErrorSocketConnectFailure:
		return "socket connection failed"
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorDnsFailure:
		return "DNS lookup failed"
	case TransportErrorTimeout:
		return "timeout"
	case TransportErrorShortRead:
		return "short read"
	case TransportErrorSocketCloseFailure:
		return "socket close failed"
	case TransportErrorIoUringInit:
		return "io_uring init failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submit failed"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorMalformedLine
	ProtocolErrorMalformedHeaderLine
	ProtocolErrorMalformedRequestLine
	ProtocolErrorMalformedStatusLine
	ProtocolErrorMalformedRange
	ProtocolErrorHeaderTooLarge
	ProtocolErrorUnexpectedStatus
	ProtocolErrorMissingContentLength
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorMalformedLine:
		return "malformed line"
	case ProtocolErrorMalformedHeaderLine:
		return "malformed header line"
	case ProtocolErrorMalformedRequestLine:
		return "malformed request line"
	case ProtocolErrorMalformedStatusLine:
		return "malformed status line"
	case ProtocolErrorMalformedRange:
		return "malformed range"
	case ProtocolErrorHeaderTooLarge:
		return "header too large"
	case ProtocolErrorUnexpectedStatus:
		return "unexpected status"
	case ProtocolErrorMissingContentLength:
		return "missing Content-Length"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// HttpError is the main error type for the transfer stack.
// Fragment holds the offending input for protocol errors.
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	Fragment      string
	UnderlyingErr error
}

// maxFragment bounds how much of the offending input ends up in Error().
const maxFragment = 128

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	s := e.Type.String()
	switch e.Type {
	case ErrorTransport:
		s = fmt.Sprintf("%s (%s)", s, e.TransportErr)
	case ErrorProtocol:
		s = fmt.Sprintf("%s (%s)", s, e.ProtocolErr)
	}

	if e.Message != "" {
		s = fmt.Sprintf("%s: %s", s, e.Message)
	}

	if e.Fragment != "" {
		frag := e.Fragment
		if len(frag) > maxFragment {
			frag = frag[:maxFragment] + "..."
		}
		s = fmt.Sprintf("%s: %q", s, frag)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", s, e.UnderlyingErr)
	}

	return s
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// Is matches another *HttpError of the same kind, so the sentinels below
// work with errors.Is at any depth of a wrap chain.
func (e *HttpError) Is(target error) bool {
	t, ok := target.(*HttpError)
	if !ok || e == nil || t == nil {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	switch e.Type {
	case ErrorTransport:
		return t.TransportErr == TransportErrorNone || e.TransportErr == t.TransportErr
	case ErrorProtocol:
		return t.ProtocolErr == ProtocolErrorNone || e.ProtocolErr == t.ProtocolErr
	default:
		return true
	}
}

var (
	ErrTimeout          = &HttpError{Type: ErrorTransport, TransportErr: TransportErrorTimeout}
	ErrConnectionClosed = &HttpError{Type: ErrorTransport, TransportErr: TransportErrorConnectionClosed}
	ErrShortRead        = &HttpError{Type: ErrorTransport, TransportErr: TransportErrorShortRead}
	ErrMalformedLine    = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorMalformedLine}
	ErrMalformedHeader  = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorMalformedHeaderLine}
	ErrMalformedRequest = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorMalformedRequestLine}
	ErrMalformedStatus  = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorMalformedStatusLine}
	ErrMalformedRange   = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorMalformedRange}
	ErrHeaderTooLarge   = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorHeaderTooLarge}
	ErrUnexpectedStatus = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorUnexpectedStatus}
	ErrMissingLength    = &HttpError{Type: ErrorProtocol, ProtocolErr: ProtocolErrorMissingContentLength}
	ErrInvalidArgument  = &HttpError{Type: ErrorInvalidArgument}
	ErrIO               = &HttpError{Type: ErrorIO}
	ErrTransport        = &HttpError{Type: ErrorTransport}
	ErrProtocol         = &HttpError{Type: ErrorProtocol}
)

// IsResumable reports whether err ended a transfer in a way a later
// ranged request can pick up from.
func IsResumable(err error) bool {
	return stderrors.Is(err, ErrTimeout) || stderrors.Is(err, ErrConnectionClosed)
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error carrying the offending input
func NewProtocolError(err ProtocolError, message string, fragment string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
		Fragment:    fragment,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// NewIOError creates a new local I/O (filesystem) error
func NewIOError(message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorIO,
		Message:       message,
		UnderlyingErr: underlying,
	}
}
