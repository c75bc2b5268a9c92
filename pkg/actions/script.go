package actions

import (
	"fmt"
	"net"
	"strconv"

	"github.com/openfroyo/control/pkg/validation"
)

// PromptSentinel in a host, username, password or passphrase field asks for
// the value to be supplied interactively at run time.
const PromptSentinel = "$PROMPT"

// AuthType selects how the transport authenticates.
type AuthType string

const (
	// AuthUserPass authenticates with a username and password.
	AuthUserPass AuthType = "userPass"

	// AuthPublicKey authenticates with a private key file.
	AuthPublicKey AuthType = "publicKey"

	// AuthAgent authenticates through a running SSH agent.
	AuthAgent AuthType = "agent"
)

// Transport names accepted in documents.
const (
	TransportSSH   = "ssh"
	TransportShell = "shell"
	TransportDebug = "debug"
)

// DefaultPort is used when a document omits the port.
const DefaultPort = 22

// Auth holds the credentials for the target host.
type Auth struct {
	// Type is the authentication mechanism
	Type AuthType `validate:"required,oneof=userPass publicKey agent"`

	// Username is the login user
	Username string `validate:"required"`

	// Password for userPass authentication
	Password string `validate:"required_if=Type userPass"`

	// PublicKeyPath is informational; the private key is what authenticates
	PublicKeyPath string

	// PrivateKeyPath is required for publicKey authentication
	PrivateKeyPath string `validate:"required_if=Type publicKey"`

	// Passphrase decrypts an encrypted private key
	Passphrase string
}

// Script is a parsed document: target, credentials, optional validation
// constraint and the ordered action list. It is read-only after loading.
type Script struct {
	// Path is the file the script was loaded from, if any
	Path string

	// Description is free text carried into the run journal
	Description string

	// Provider names the OS family provider (debian, ubuntu, fedora)
	Provider string `validate:"required"`

	// Transport names the session transport (ssh, shell, debug)
	Transport string `validate:"required,oneof=ssh shell debug"`

	// Host is the target hostname or address
	Host string `validate:"required"`

	// Port is the target port
	Port int `validate:"min=1,max=65535"`

	// Sudo prefixes every command with sudo
	Sudo bool

	// HideHistory prefixes every command with a space so interactive
	// shells with HISTCONTROL=ignorespace do not record it
	HideHistory bool

	Auth Auth

	// Validation is nil when the document sets no systemValidation
	Validation *validation.SystemValidation `validate:"-"`

	Actions []Action `validate:"-"`
}

// Address returns host:port.
func (s *Script) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NeedsPrompt reports whether any credential field holds the prompt sentinel.
func (s *Script) NeedsPrompt() bool {
	return s.Host == PromptSentinel ||
		s.Auth.Username == PromptSentinel ||
		s.Auth.Password == PromptSentinel ||
		s.Auth.Passphrase == PromptSentinel
}

// Validate checks the script's structural constraints.
func (s *Script) Validate() error {
	if err := validateStruct(s); err != nil {
		return err
	}
	for i, a := range s.Actions {
		if !a.Kind.Executable() {
			return fmt.Errorf("action %d: %w: %s", i, ErrUnknownAction, a.Kind)
		}
	}
	return nil
}
