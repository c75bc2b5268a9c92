package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/openfroyo/control/pkg/actions"
)

// ErrNoCredential is returned when a prompted value cannot be supplied.
var ErrNoCredential = errors.New("credential not available")

// CredentialResolver supplies values for fields set to the prompt sentinel.
type CredentialResolver interface {
	// PromptText asks for a value that may be echoed.
	PromptText(label string) (string, error)

	// PromptSecret asks for a value that must not be echoed.
	PromptSecret(label string) (string, error)
}

// TerminalPrompter reads answers from a terminal, masking secrets.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

// NewTerminalPrompter prompts on stderr and reads from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// PromptText reads one line.
func (p *TerminalPrompter) PromptText(label string) (string, error) {
	fmt.Fprintf(p.Out, "%s: ", label)
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptSecret reads one line with echo disabled. It fails when the input
// is not a terminal.
func (p *TerminalPrompter) PromptSecret(label string) (string, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: %s needs an interactive terminal", ErrNoCredential, label)
	}
	fmt.Fprintf(p.Out, "%s: ", label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return string(secret), nil
}

// StaticCredentials answers prompts from a fixed map keyed by label.
type StaticCredentials map[string]string

// PromptText returns the value stored for label.
func (s StaticCredentials) PromptText(label string) (string, error) {
	v, ok := s[label]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoCredential, label)
	}
	return v, nil
}

// PromptSecret returns the value stored for label.
func (s StaticCredentials) PromptSecret(label string) (string, error) {
	return s.PromptText(label)
}

// Prompt labels used when resolving a script.
const (
	LabelHost       = "Hostname"
	LabelUsername   = "Username"
	LabelPassword   = "Password"
	LabelPassphrase = "Key passphrase"
)

// resolveCredentials returns a copy of s with every prompt sentinel
// replaced by the resolver's answer.
func resolveCredentials(s *actions.Script, r CredentialResolver) (*actions.Script, error) {
	resolved := *s
	if !s.NeedsPrompt() {
		return &resolved, nil
	}
	if r == nil {
		return nil, fmt.Errorf("%w: script requests a prompt but no resolver is configured", ErrNoCredential)
	}

	fields := []struct {
		value  *string
		label  string
		secret bool
	}{
		{&resolved.Host, LabelHost, false},
		{&resolved.Auth.Username, LabelUsername, false},
		{&resolved.Auth.Password, LabelPassword, true},
		{&resolved.Auth.Passphrase, LabelPassphrase, true},
	}

	for _, f := range fields {
		if *f.value != actions.PromptSentinel {
			continue
		}
		var (
			v   string
			err error
		)
		if f.secret {
			v, err = r.PromptSecret(f.label)
		} else {
			v, err = r.PromptText(f.label)
		}
		if err != nil {
			return nil, err
		}
		*f.value = v
	}

	return &resolved, nil
}
