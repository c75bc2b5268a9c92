package transports

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures for retry decisions.
type ErrorKind int

const (
	// Other is any failure not covered below. Retry-eligible.
	Other ErrorKind = iota

	// ConfigFailure means the connection settings are unusable. Never retried.
	ConfigFailure

	// ConnectionError means the host could not be reached or the connection
	// dropped. Retry-eligible.
	ConnectionError

	// AuthenticationError means the host rejected the credentials. Never
	// retried.
	AuthenticationError
)

// String returns a readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ConfigFailure:
		return "config failure"
	case ConnectionError:
		return "connection error"
	case AuthenticationError:
		return "authentication error"
	default:
		return "other"
	}
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Kind classifies the failure
	Kind ErrorKind

	// Err is the underlying error
	Err error
}

// NewError wraps err as a TransportError.
func NewError(op string, kind ErrorKind, err error) *TransportError {
	return &TransportError{Op: op, Kind: kind, Err: err}
}

// Errorf builds a TransportError from a format string.
func Errorf(op string, kind ErrorKind, format string, args ...any) *TransportError {
	return &TransportError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on another attempt.
func (e *TransportError) Retryable() bool {
	return e.Kind == ConnectionError || e.Kind == Other
}

// Is matches another TransportError by kind.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the kind of the first TransportError in err's chain, or
// Other when there is none.
func KindOf(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return Other
}

// IsRetryable reports whether err is a retry-eligible transport failure.
// Errors that are not TransportErrors are treated as Other.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return true
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return KindOf(err) == AuthenticationError
}
