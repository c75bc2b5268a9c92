// Package debug provides a transport that never touches a network. It
// records every command and file operation, answers commands from scripted
// rules and keeps files in memory. It backs dry runs and tests.
package debug

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/transports"
)

// Write records one WriteTextFile call.
type Write struct {
	Path     string
	Mode     uint32
	Contents string
}

// Transfer records one SendFile or ReceiveFile call.
type Transfer struct {
	Local  string
	Remote string
	Mode   uint32
}

// Response is the scripted outcome of a matching command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err, when set, is returned as a transport failure.
	Err error
}

type rule struct {
	match     func(string) bool
	responses []Response
	used      int
}

// Transport is an in-memory transports.Transport.
type Transport struct {
	mu sync.Mutex

	// Commands holds every command passed to Run, in order.
	Commands []string

	// Writes holds every WriteTextFile call, in order.
	Writes []Write

	// Sent and Received hold binary transfers.
	Sent     []Transfer
	Received []Transfer

	// Files is the in-memory remote filesystem used by the text file
	// methods and by SendFile/ReceiveFile.
	Files map[string]string

	// Modes records the last mode written for each path.
	Modes map[string]uint32

	// Permissive makes reads of unknown paths return empty contents and
	// keeps ReceiveFile off the local disk. Dry runs set it.
	Permissive bool

	rules  []*rule
	closed bool
}

var _ transports.Transport = (*Transport)(nil)

// New returns an empty debug transport. Unmatched commands succeed with no
// output.
func New() *Transport {
	return &Transport{
		Files: make(map[string]string),
		Modes: make(map[string]uint32),
	}
}

// On answers commands containing substr with the given responses in turn.
// Once exhausted, the last response repeats. Later rules take precedence.
func (t *Transport) On(substr string, responses ...Response) *Transport {
	return t.OnFunc(func(cmd string) bool { return strings.Contains(cmd, substr) }, responses...)
}

// OnPrefix answers commands starting with prefix.
func (t *Transport) OnPrefix(prefix string, responses ...Response) *Transport {
	return t.OnFunc(func(cmd string) bool { return strings.HasPrefix(cmd, prefix) }, responses...)
}

// OnFunc answers commands for which match returns true.
func (t *Transport) OnFunc(match func(string) bool, responses ...Response) *Transport {
	if len(responses) == 0 {
		responses = []Response{{}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append(t.rules, &rule{match: match, responses: responses})
	return t
}

// Run records cmd and returns the scripted response.
func (t *Transport) Run(ctx context.Context, cmd string) (*transports.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, transports.NewError("execute", transports.Other, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, transports.Errorf("execute", transports.ConnectionError, "transport closed")
	}

	t.Commands = append(t.Commands, cmd)
	resp := t.respond(cmd)

	log.Debug().Str("command", cmd).Int("exit_code", resp.ExitCode).Msg("debug transport command")

	if resp.Err != nil {
		return nil, resp.Err
	}
	return &transports.CommandResult{
		Stdout:            resp.Stdout,
		Stderr:            resp.Stderr,
		StderrAvailable:   true,
		ExitCode:          resp.ExitCode,
		ExitCodeAvailable: true,
	}, nil
}

func (t *Transport) respond(cmd string) Response {
	for i := len(t.rules) - 1; i >= 0; i-- {
		r := t.rules[i]
		if !r.match(cmd) {
			continue
		}
		idx := r.used
		if idx >= len(r.responses) {
			idx = len(r.responses) - 1
		}
		r.used++
		return r.responses[idx]
	}
	return Response{}
}

// ReadTextFile returns the in-memory contents of path.
func (t *Transport) ReadTextFile(ctx context.Context, path string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	contents, ok := t.Files[path]
	if !ok {
		if t.Permissive {
			return "", nil
		}
		return "", transports.NewError("read-file", transports.Other, fmt.Errorf("%s: %w", path, os.ErrNotExist))
	}
	return contents, nil
}

// WriteTextFile stores contents in memory and records the call.
func (t *Transport) WriteTextFile(ctx context.Context, path string, mode uint32, contents string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Writes = append(t.Writes, Write{Path: path, Mode: mode, Contents: contents})
	t.Files[path] = contents
	t.Modes[path] = mode
	return nil
}

// SendFile reads the local file into the in-memory filesystem.
func (t *Transport) SendFile(ctx context.Context, localPath, remotePath string, mode uint32) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return transports.NewError("upload", transports.Other, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.Sent = append(t.Sent, Transfer{Local: localPath, Remote: remotePath, Mode: mode})
	t.Files[remotePath] = string(data)
	t.Modes[remotePath] = mode
	return nil
}

// ReceiveFile writes the in-memory file to localPath.
func (t *Transport) ReceiveFile(ctx context.Context, remotePath, localPath string) error {
	t.mu.Lock()
	contents, ok := t.Files[remotePath]
	t.Received = append(t.Received, Transfer{Local: localPath, Remote: remotePath})
	permissive := t.Permissive
	t.mu.Unlock()

	if permissive {
		return nil
	}
	if !ok {
		return transports.NewError("download", transports.Other, fmt.Errorf("%s: %w", remotePath, os.ErrNotExist))
	}
	if err := os.WriteFile(localPath, []byte(contents), 0o644); err != nil {
		return transports.NewError("download", transports.Other, err)
	}
	return nil
}

// Close marks the transport closed. Later commands fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// CommandsMatching returns the recorded commands containing substr.
func (t *Transport) CommandsMatching(substr string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, c := range t.Commands {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

// Paths returns the in-memory file paths in sorted order.
func (t *Transport) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
