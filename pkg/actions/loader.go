package actions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/control/pkg/params"
	"github.com/openfroyo/control/pkg/validation"
)

var (
	// ErrUnknownAction is returned for an action name the loader does not know.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMalformedAction is returned when an actions entry is not a
	// single-key map.
	ErrMalformedAction = errors.New("malformed action entry")

	// ErrInvalidScript wraps structural validation failures.
	ErrInvalidScript = errors.New("invalid script")
)

// document mirrors the on-disk YAML layout.
type document struct {
	Description      string      `yaml:"description"`
	Provider         string      `yaml:"provider"`
	Transport        string      `yaml:"transport"`
	Host             string      `yaml:"host"`
	Hostname         string      `yaml:"hostname"`
	Port             int         `yaml:"port"`
	Sudo             bool        `yaml:"sudo"`
	HideHistory      bool        `yaml:"hideHistory"`
	SystemValidation string      `yaml:"systemValidation"`
	AuthType         string      `yaml:"authType"`
	User             string      `yaml:"user"`
	Password         string      `yaml:"password"`
	PublicKeyPath    string      `yaml:"publicKeyPath"`
	PrivateKeyPath   string      `yaml:"privateKeyPath"`
	Passphrase       string      `yaml:"passphrase"`
	Actions          []yaml.Node `yaml:"actions"`
}

// LoadFile reads and validates the script at path.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Load parses and validates a script document.
func Load(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	s, err := doc.toScript()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("provider", s.Provider).
		Str("host", s.Host).
		Int("actions", len(s.Actions)).
		Msg("Loaded script")

	return s, nil
}

func (d *document) toScript() (*Script, error) {
	host := d.Host
	if host == "" {
		host = d.Hostname
	} else if d.Hostname != "" && d.Hostname != d.Host {
		return nil, fmt.Errorf("%w: host and hostname disagree (%q vs %q)", ErrInvalidScript, d.Host, d.Hostname)
	}

	s := &Script{
		Description: d.Description,
		Provider:    strings.ToLower(strings.TrimSpace(d.Provider)),
		Transport:   strings.ToLower(strings.TrimSpace(d.Transport)),
		Host:        host,
		Port:        d.Port,
		Sudo:        d.Sudo,
		HideHistory: d.HideHistory,
		Auth: Auth{
			Username:       d.User,
			Password:       d.Password,
			PublicKeyPath:  d.PublicKeyPath,
			PrivateKeyPath: d.PrivateKeyPath,
			Passphrase:     d.Passphrase,
		},
	}
	if s.Transport == "" {
		s.Transport = TransportSSH
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}

	authType, err := parseAuthType(d.AuthType, d)
	if err != nil {
		return nil, err
	}
	s.Auth.Type = authType

	if strings.TrimSpace(d.SystemValidation) != "" {
		sv, err := validation.Parse(d.SystemValidation)
		if err != nil {
			return nil, fmt.Errorf("%w: systemValidation: %w", ErrInvalidScript, err)
		}
		s.Validation = &sv
	}

	s.Actions = make([]Action, 0, len(d.Actions))
	for i := range d.Actions {
		a, err := parseAction(&d.Actions[i])
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		s.Actions = append(s.Actions, a)
	}

	return s, nil
}

func parseAuthType(raw string, d *document) (AuthType, error) {
	switch {
	case raw == "":
		if d.Password == "" && d.PrivateKeyPath != "" {
			return AuthPublicKey, nil
		}
		return AuthUserPass, nil
	case strings.EqualFold(raw, string(AuthUserPass)):
		return AuthUserPass, nil
	case strings.EqualFold(raw, string(AuthPublicKey)):
		return AuthPublicKey, nil
	case strings.EqualFold(raw, string(AuthAgent)):
		return AuthAgent, nil
	}
	return "", fmt.Errorf("%w: unsupported authType %q", ErrInvalidScript, raw)
}

func parseAction(n *yaml.Node) (Action, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return Action{}, fmt.Errorf("line %d: %w: expected a single-key map", n.Line, ErrMalformedAction)
	}

	name := n.Content[0].Value
	kind, ok := ParseKind(name)
	if !ok {
		return Action{}, fmt.Errorf("line %d: %w: %q", n.Line, ErrUnknownAction, name)
	}

	bag, err := params.BagFromNode(n.Content[1])
	if err != nil {
		return Action{}, fmt.Errorf("%s: %w", name, err)
	}

	return New(kind, bag), nil
}
