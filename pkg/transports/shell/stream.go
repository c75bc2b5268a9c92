package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/control/pkg/transports"
)

// abortOnDone kills the remote process and closes session once ctx is done,
// which unblocks pending channel reads and writes. The returned stop func
// must be called when the transfer ends.
func abortOnDone(ctx context.Context, session *ssh.Session) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
	})
}

// push writes src to path with "cat >" and then applies mode.
func (t *Transport) push(ctx context.Context, path string, mode uint32, src io.Reader) error {
	session, err := t.conn.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin: %w", err)
	}

	quoted := transports.ShellQuote(path)
	cmd := fmt.Sprintf("cat > %s && chmod %s %s", quoted, transports.FormatMode(mode), quoted)
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start %q: %w", cmd, err)
	}
	stop := abortOnDone(ctx, session)
	defer stop()

	written, copyErr := transports.CopyChunked(ctx, stdin, src)
	closeErr := stdin.Close()
	waitErr := session.Wait()

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("cancelled after %d bytes: %w", written, ctx.Err())
	case copyErr != nil:
		return fmt.Errorf("failed after %d bytes: %w", written, copyErr)
	case closeErr != nil:
		return fmt.Errorf("failed to close stdin: %w", closeErr)
	case waitErr != nil:
		return fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), waitErr)
	}
	return nil
}

// pull copies the output of "cat path" into dst.
func (t *Transport) pull(ctx context.Context, path string, dst io.Writer) error {
	session, err := t.conn.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout: %w", err)
	}

	cmd := "cat " + transports.ShellQuote(path)
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start %q: %w", cmd, err)
	}
	stop := abortOnDone(ctx, session)
	defer stop()

	_, copyErr := transports.CopyChunked(ctx, dst, stdout)
	waitErr := session.Wait()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case copyErr != nil:
		return copyErr
	case waitErr != nil:
		return fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), waitErr)
	}
	return nil
}
