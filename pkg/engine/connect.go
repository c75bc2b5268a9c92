package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/transports"
	"github.com/openfroyo/control/pkg/transports/debug"
	"github.com/openfroyo/control/pkg/transports/shell"
	sshtransport "github.com/openfroyo/control/pkg/transports/ssh"
)

// Dialer opens a transport to the script's target.
type Dialer func(ctx context.Context, s *actions.Script) (transports.Transport, error)

// SSHSettings are the tool-level connection settings that do not come from
// the script.
type SSHSettings struct {
	KnownHostsPath        string
	StrictHostKeyChecking bool
	ConnectTimeout        time.Duration
	CommandTimeout        time.Duration
}

// DefaultSSHSettings verifies host keys against ~/.ssh/known_hosts.
func DefaultSSHSettings() SSHSettings {
	base := sshtransport.DefaultConfig("", "")
	return SSHSettings{
		KnownHostsPath:        base.KnownHostsPath,
		StrictHostKeyChecking: true,
		ConnectTimeout:        base.ConnectionTimeout,
	}
}

// NewDialer returns a Dialer that picks the transport named by the script.
func NewDialer(settings SSHSettings) Dialer {
	return func(ctx context.Context, s *actions.Script) (transports.Transport, error) {
		switch s.Transport {
		case actions.TransportDebug:
			return debug.New(), nil
		case actions.TransportShell:
			return shell.Dial(ctx, sshConfig(s, settings))
		case actions.TransportSSH, "":
			return sshtransport.Dial(ctx, sshConfig(s, settings))
		}
		return nil, transports.Errorf("dial", transports.ConfigFailure, "unknown transport %q", s.Transport)
	}
}

func sshConfig(s *actions.Script, settings SSHSettings) *sshtransport.Config {
	cfg := sshtransport.DefaultConfig(s.Host, s.Auth.Username)
	cfg.Port = s.Port
	cfg.StrictHostKeyChecking = settings.StrictHostKeyChecking
	if settings.KnownHostsPath != "" {
		cfg.KnownHostsPath = settings.KnownHostsPath
	}
	if settings.ConnectTimeout > 0 {
		cfg.ConnectionTimeout = settings.ConnectTimeout
	}
	cfg.CommandTimeout = settings.CommandTimeout

	switch s.Auth.Type {
	case actions.AuthPublicKey:
		cfg.AuthMethod = sshtransport.AuthMethodKey
		cfg.PrivateKeyPath = s.Auth.PrivateKeyPath
		cfg.PrivateKeyPassphrase = s.Auth.Passphrase
	case actions.AuthAgent:
		cfg.AuthMethod = sshtransport.AuthMethodAgent
	default:
		cfg.AuthMethod = sshtransport.AuthMethodPassword
		cfg.Password = s.Auth.Password
	}
	return cfg
}

// RetryPolicy bounds connection retries.
type RetryPolicy struct {
	// Enabled turns retries on. When false a single attempt is made.
	Enabled bool

	// Attempts is the number of retries after the first attempt.
	Attempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy retries 15 times, 30 seconds apart, once enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 15, Delay: 30 * time.Second}
}

func (p RetryPolicy) maxTries() uint {
	if !p.Enabled || p.Attempts <= 0 {
		return 1
	}
	return uint(p.Attempts) + 1
}

// connect dials with the retry policy. Only retryable transport errors are
// retried; configuration and authentication failures stop at once.
func (m *Manager) connect(ctx context.Context, s *actions.Script, dial Dialer) (transports.Transport, error) {
	attempt := 0
	op := func() (transports.Transport, error) {
		attempt++
		t, err := dial(ctx, s)
		if err == nil {
			m.telemetry.Metrics.RecordConnectAttempt("success")
			return t, nil
		}

		m.telemetry.Metrics.RecordConnectAttempt(transports.KindOf(err).String())
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Int("attempt", attempt).
			Str("host", s.Address()).
			Str("kind", transports.KindOf(err).String()).
			Msg("Connection attempt failed")

		if !transports.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	t, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.retry.Delay)),
		backoff.WithMaxTries(m.retry.maxTries()),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return nil, fmt.Errorf("failed to connect to %s after %d attempt(s): %w", s.Address(), attempt, err)
	}
	return t, nil
}
