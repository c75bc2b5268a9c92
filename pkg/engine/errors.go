package engine

import (
	"errors"
	"fmt"

	"github.com/openfroyo/control/pkg/actions"
)

// Stage names the part of a run that failed.
type Stage string

const (
	// StageLoad covers script loading, provider lookup and credential
	// resolution.
	StageLoad Stage = "load"

	// StageConnect covers session establishment, including retries.
	StageConnect Stage = "connect"

	// StageValidation covers the pre-flight distro check.
	StageValidation Stage = "validation"

	// StageAction covers action execution.
	StageAction Stage = "action"
)

// Process exit codes for each stage.
const (
	ExitSuccess          = 0
	ExitActionFailed     = 1
	ExitUsage            = 2
	ExitConnectionFailed = 3
	ExitValidationFailed = 4
)

// RunError is returned by Manager.Run when a run stops early.
type RunError struct {
	// Stage is where the run stopped.
	Stage Stage

	// Index is the failing action's position; -1 outside StageAction.
	Index int

	// Kind is the failing action's kind, if any.
	Kind actions.Kind

	// Message is a human-readable description.
	Message string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	prefix := string(e.Stage)
	if e.Stage == StageAction {
		prefix = fmt.Sprintf("action %d (%s)", e.Index, e.Kind)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", prefix, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Message, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RunError) Unwrap() error {
	return e.Err
}

// ExitCode maps the stage to a process exit code.
func (e *RunError) ExitCode() int {
	switch e.Stage {
	case StageAction:
		return ExitActionFailed
	case StageConnect:
		return ExitConnectionFailed
	case StageValidation:
		return ExitValidationFailed
	default:
		return ExitUsage
	}
}

func newStageError(stage Stage, message string, err error) *RunError {
	return &RunError{Stage: stage, Index: -1, Message: message, Err: err}
}

// ExitCode returns the process exit code for an error returned by Run.
// Errors that are not RunErrors map to ExitUsage.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var re *RunError
	if errors.As(err, &re) {
		return re.ExitCode()
	}
	return ExitUsage
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Stage, true
	}
	return "", false
}
