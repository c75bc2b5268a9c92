package engine

import (
	"time"

	"github.com/openfroyo/control/pkg/actions"
)

// ActionOutcome is the result of one executed action.
type ActionOutcome struct {
	Index    int
	Kind     actions.Kind
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the action completed without error.
func (o ActionOutcome) Succeeded() bool {
	return o.Err == nil
}

// Report summarises one run. Actions holds only the actions that were
// attempted; the first failure, if any, is the last entry.
type Report struct {
	RunID      string
	ScriptPath string
	Host       string
	Provider   string
	DryRun     bool
	StartedAt  time.Time
	Duration   time.Duration
	Actions    []ActionOutcome

	// Commands lists every command issued during a dry run.
	Commands []string

	// Writes lists the files a dry run would have written, in order.
	Writes []FileWrite

	// Total is the number of actions in the script.
	Total int

	// Err is the error returned by Run, if any.
	Err error
}

// FileWrite is a file write recorded during a dry run.
type FileWrite struct {
	Path     string
	Mode     uint32
	Contents string
}

// Succeeded reports whether every action ran without error.
func (r *Report) Succeeded() bool {
	return r != nil && r.Err == nil && len(r.Actions) == r.Total
}

// Completed returns the number of actions that succeeded.
func (r *Report) Completed() int {
	n := 0
	for _, a := range r.Actions {
		if a.Succeeded() {
			n++
		}
	}
	return n
}

// ExitCode maps the run outcome to a process exit code.
func (r *Report) ExitCode() int {
	if r == nil {
		return ExitUsage
	}
	return ExitCode(r.Err)
}
