package providers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/transports"
)

// ErrorKind classifies an action failure.
type ErrorKind string

const (
	// NotImplemented means the provider has no implementation for the action.
	NotImplemented ErrorKind = "not implemented"

	// InvalidParams means the action's parameters are missing or malformed.
	InvalidParams ErrorKind = "invalid params"

	// CantConnect means the session was lost while running the action.
	CantConnect ErrorKind = "can't connect"

	// AuthenticationIssue means the host rejected the session's credentials.
	AuthenticationIssue ErrorKind = "authentication issue"

	// FailedCommand means a remote command signalled failure through its
	// exit status or stderr.
	FailedCommand ErrorKind = "failed command"

	// FailedOther covers file transfer, parsing and any other failure.
	FailedOther ErrorKind = "failed"
)

// ActionError is the error returned by provider methods.
type ActionError struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// Detail is a human-readable description.
	Detail string

	// Command is the remote command that failed, if any.
	Command string

	// Stderr is the captured error output of Command, if any.
	Stderr string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Command != "" {
		fmt.Fprintf(&b, " (command %q)", e.Command)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(e.Stderr))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// Is matches another ActionError by kind.
func (e *ActionError) Is(target error) bool {
	t, ok := target.(*ActionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotImplemented      = &ActionError{Kind: NotImplemented}
	ErrInvalidParams       = &ActionError{Kind: InvalidParams}
	ErrCantConnect         = &ActionError{Kind: CantConnect}
	ErrAuthenticationIssue = &ActionError{Kind: AuthenticationIssue}
	ErrFailedCommand       = &ActionError{Kind: FailedCommand}
	ErrFailedOther         = &ActionError{Kind: FailedOther}
)

func notImplemented(kind actions.Kind) *ActionError {
	return &ActionError{Kind: NotImplemented, Detail: kind.String()}
}

func invalidParams(format string, args ...any) *ActionError {
	return &ActionError{Kind: InvalidParams, Detail: fmt.Sprintf(format, args...)}
}

// paramError wraps a params extraction error.
func paramError(err error) *ActionError {
	return &ActionError{Kind: InvalidParams, Err: err}
}

func failedCommand(detail, cmd string, result *transports.CommandResult) *ActionError {
	e := &ActionError{Kind: FailedCommand, Detail: detail, Command: cmd}
	if result != nil {
		e.Stderr = result.Stderr
		if e.Stderr == "" && !result.StderrAvailable {
			e.Stderr = result.Stdout
		}
		if result.ExitCodeAvailable && result.ExitCode != 0 {
			e.Detail = fmt.Sprintf("%s (exit code %d)", detail, result.ExitCode)
		}
	}
	return e
}

func failedOther(detail string, err error) *ActionError {
	return &ActionError{Kind: FailedOther, Detail: detail, Err: err}
}

// fromTransport maps a transport failure onto the action taxonomy.
func fromTransport(detail string, err error) *ActionError {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae
	}
	switch transports.KindOf(err) {
	case transports.ConnectionError:
		return &ActionError{Kind: CantConnect, Detail: detail, Err: err}
	case transports.AuthenticationError:
		return &ActionError{Kind: AuthenticationIssue, Detail: detail, Err: err}
	}
	return failedOther(detail, err)
}

// KindOf returns the kind of the first ActionError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsNotImplemented reports whether err is a NotImplemented ActionError.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsInvalidParams reports whether err is an InvalidParams ActionError.
func IsInvalidParams(err error) bool {
	return errors.Is(err, ErrInvalidParams)
}

// IsFailedCommand reports whether err is a FailedCommand ActionError.
func IsFailedCommand(err error) bool {
	return errors.Is(err, ErrFailedCommand)
}
