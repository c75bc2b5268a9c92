// Package shell implements the secondary transport. Commands run with
// combined output, so stderr is never separable and callers must rely on the
// exit status. Files move by piping through cat on the remote side, which
// works on hosts without an SFTP subsystem.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/control/pkg/transports"
	sshtransport "github.com/openfroyo/control/pkg/transports/ssh"
)

// Transport runs commands over an SSH connection without stderr separation.
type Transport struct {
	conn *sshtransport.Client
}

var _ transports.Transport = (*Transport)(nil)

// Dial connects using the same configuration as the SSH transport.
func Dial(ctx context.Context, config *sshtransport.Config) (*Transport, error) {
	conn, err := sshtransport.Dial(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn}, nil
}

// New wraps an already connected client.
func New(conn *sshtransport.Client) *Transport {
	return &Transport{conn: conn}
}

type outcome struct {
	out []byte
	err error
}

// Run executes cmd and captures combined stdout and stderr.
func (t *Transport) Run(ctx context.Context, cmd string) (*transports.CommandResult, error) {
	startTime := time.Now()

	session, err := t.conn.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	ch := make(chan outcome, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		ch <- outcome{out, err}
	}()

	var r outcome
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, transports.NewError("execute", transports.Other, ctx.Err())
	case r = <-ch:
	}

	result := &transports.CommandResult{
		Stdout:   transports.ToValidText(r.out),
		Duration: time.Since(startTime),
	}
	if err := applyExit(result, r.err); err != nil {
		return nil, err
	}

	log.Debug().
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Bool("exit_code_available", result.ExitCodeAvailable).
		Int("output_len", len(result.Stdout)).
		Dur("duration", result.Duration).
		Msg("command completed")

	return result, nil
}

func applyExit(result *transports.CommandResult, err error) error {
	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
		result.ExitCodeAvailable = true
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
		result.ExitCodeAvailable = true
	case errors.As(err, &missingErr):
	default:
		return transports.NewError("execute", transports.ConnectionError, err)
	}
	return nil
}

// ReadTextFile returns the output of cat on the remote file.
func (t *Transport) ReadTextFile(ctx context.Context, path string) (string, error) {
	var buf bytes.Buffer
	if err := t.pull(ctx, path, &buf); err != nil {
		return "", transports.NewError("read-file", transports.Other, err)
	}
	return transports.ToValidText(buf.Bytes()), nil
}

// WriteTextFile streams contents into the remote file and sets its mode.
func (t *Transport) WriteTextFile(ctx context.Context, path string, mode uint32, contents string) error {
	if err := t.push(ctx, path, mode, strings.NewReader(contents)); err != nil {
		return transports.NewError("write-file", transports.Other, err)
	}
	return nil
}

// SendFile streams a local file to the remote host.
func (t *Transport) SendFile(ctx context.Context, localPath, remotePath string, mode uint32) error {
	f, err := os.Open(localPath)
	if err != nil {
		return transports.NewError("upload", transports.Other, fmt.Errorf("failed to open local file: %w", err))
	}
	defer f.Close()

	if err := t.push(ctx, remotePath, mode, f); err != nil {
		return transports.NewError("upload", transports.Other, err)
	}
	return nil
}

// ReceiveFile streams a remote file into a local file.
func (t *Transport) ReceiveFile(ctx context.Context, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to create local directory: %w", err))
	}
	f, err := os.Create(localPath)
	if err != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to create local file: %w", err))
	}

	pullErr := t.pull(ctx, remotePath, f)
	closeErr := f.Close()
	if pullErr != nil {
		return transports.NewError("download", transports.Other, pullErr)
	}
	if closeErr != nil {
		return transports.NewError("download", transports.Other, closeErr)
	}
	return nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}
