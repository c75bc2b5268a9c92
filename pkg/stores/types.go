package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus represents the status of a script run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// ActionStatus represents the outcome of one action
type ActionStatus string

const (
	ActionStatusSucceeded ActionStatus = "succeeded"
	ActionStatusFailed    ActionStatus = "failed"
)

// Run is one execution of a script against a host
type Run struct {
	ID         string     `json:"id"`
	ScriptPath string     `json:"script_path"`
	Host       string     `json:"host"`
	Provider   string     `json:"provider"`
	Status     RunStatus  `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ActionRecord is the outcome of one action within a run
type ActionRecord struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	Index      int           `json:"index"`
	Kind       string        `json:"kind"`
	Status     ActionStatus  `json:"status"`
	Duration   time.Duration `json:"duration"`
	Error      *string       `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Journal records runs and their actions
type Journal interface {
	// Run operations
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, exitCode int, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Action operations
	RecordAction(ctx context.Context, rec *ActionRecord) error
	ListActions(ctx context.Context, runID string) ([]*ActionRecord, error)

	Close() error
}
