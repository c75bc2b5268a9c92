package ssh

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/control/pkg/transports"
)

// Run executes cmd in a fresh session. A non-zero exit status is returned in
// the result; only transport failures produce an error.
func (c *Client) Run(ctx context.Context, cmd string) (*transports.CommandResult, error) {
	startTime := time.Now()

	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	session, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		return nil, transports.NewError("execute", transports.Other, ctx.Err())
	case execErr = <-doneChan:
	}

	result := &transports.CommandResult{
		Stdout:          transports.ToValidText(stdoutBuf.Bytes()),
		Stderr:          transports.ToValidText(stderrBuf.Bytes()),
		StderrAvailable: true,
		Duration:        time.Since(startTime),
	}

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case execErr == nil:
		result.ExitCodeAvailable = true
	case errors.As(execErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
		result.ExitCodeAvailable = true
	case errors.As(execErr, &missingErr):
		// The remote side closed the channel without an exit status.
	default:
		return nil, transports.NewError("execute", transports.ConnectionError, execErr)
	}

	log.Debug().
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Bool("exit_code_available", result.ExitCodeAvailable).
		Int("stdout_len", len(result.Stdout)).
		Int("stderr_len", len(result.Stderr)).
		Dur("duration", result.Duration).
		Msg("command completed")

	return result, nil
}
