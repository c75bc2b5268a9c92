// Package transports defines the remote session contract shared by every
// concrete transport: one-shot command execution returning its result
// directly, plus whole-file text and binary transfer.
package transports

import (
	"context"
	"time"
)

// Transport runs commands on, and moves files to and from, one remote host.
// Implementations are used from a single goroutine.
type Transport interface {
	// Run executes cmd once and returns its captured output. A non-zero exit
	// status is reported in the result, not as an error; errors are reserved
	// for transport failures.
	Run(ctx context.Context, cmd string) (*CommandResult, error)

	// ReadTextFile returns the contents of a remote file. Invalid UTF-8 is
	// replaced rather than rejected.
	ReadTextFile(ctx context.Context, path string) (string, error)

	// WriteTextFile replaces a remote file with contents and the given mode.
	WriteTextFile(ctx context.Context, path string, mode uint32, contents string) error

	// SendFile uploads a local file.
	SendFile(ctx context.Context, localPath, remotePath string, mode uint32) error

	// ReceiveFile downloads a remote file.
	ReceiveFile(ctx context.Context, remotePath, localPath string) error

	// Close releases the underlying connection.
	Close() error
}

// CommandResult is the outcome of one command.
type CommandResult struct {
	// Stdout is the captured standard output
	Stdout string

	// Stderr is the captured standard error. Empty when StderrAvailable
	// is false.
	Stderr string

	// StderrAvailable is false for transports that merge stderr into stdout
	StderrAvailable bool

	// ExitCode is the command's exit status
	ExitCode int

	// ExitCodeAvailable is false when the remote side sent no exit status
	ExitCodeAvailable bool

	// Duration is the wall time spent running the command
	Duration time.Duration
}

// HadOutput reports whether stdout was non-empty.
func (r *CommandResult) HadOutput() bool {
	return r != nil && r.Stdout != ""
}

// ExitedWithError reports whether an exit code is known and non-zero.
func (r *CommandResult) ExitedWithError() bool {
	return r != nil && r.ExitCodeAvailable && r.ExitCode != 0
}

// HadStderr reports whether separable stderr output was captured.
func (r *CommandResult) HadStderr() bool {
	return r != nil && r.StderrAvailable && r.Stderr != ""
}

// Failed prefers the exit code and falls back to stderr when no exit code
// is available.
func (r *CommandResult) Failed() bool {
	if r == nil {
		return true
	}
	if r.ExitCodeAvailable {
		return r.ExitCode != 0
	}
	return r.HadStderr()
}

// RemoteSession couples a live transport with the negotiated session
// parameters. It is owned by one run.
type RemoteSession struct {
	Transport Transport

	// Host and Port identify the target
	Host string
	Port int

	// User is the login user
	User string

	// Elevate prefixes commands with sudo
	Elevate bool

	// HideHistory prefixes commands with a space
	HideHistory bool
}

// Close closes the transport if one is attached.
func (s *RemoteSession) Close() error {
	if s == nil || s.Transport == nil {
		return nil
	}
	return s.Transport.Close()
}
