// Package ssh implements the primary remote session transport: commands run
// over an SSH exec channel with separate stdout/stderr and an exit status,
// and files move over SFTP.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/openfroyo/control/pkg/transports"
)

// Client is an SSH connection to one host. It implements transports.Transport.
type Client struct {
	config *Config

	mu          sync.Mutex
	client      *ssh.Client
	agentConn   io.Closer
	sftpClient  *sftp.Client
	connectedAt time.Time
}

var _ transports.Transport = (*Client)(nil)

// NewClient validates config and returns an unconnected client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, transports.NewError("config", transports.ConfigFailure, err)
	}
	return &Client{config: config}, nil
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, config *Config) (*Client, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect establishes the SSH connection. Failures are classified so callers
// can decide whether a retry makes sense.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, agentConn, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return transports.NewError("connect", transports.ConfigFailure, err)
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Str("user", c.config.User).Msg("establishing SSH connection")

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		closeQuietly(agentConn)
		return transports.NewError("connect", transports.ConnectionError, err)
	}

	// Bound the handshake; NewClientConn does not take a context.
	_ = conn.SetDeadline(time.Now().Add(c.config.ConnectionTimeout))
	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		closeQuietly(agentConn)
		return transports.NewError("connect", classifyHandshakeError(err), err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(ncc, chans, reqs)
	c.agentConn = agentConn
	c.connectedAt = time.Now()

	log.Info().Str("address", address).Msg("SSH connection established")
	return nil
}

// classifyHandshakeError separates credential rejections and host key
// problems, which never succeed on retry, from transient failures.
func classifyHandshakeError(err error) transports.ErrorKind {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return transports.ConfigFailure
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "no supported methods remain"):
		return transports.AuthenticationError
	case strings.Contains(msg, "knownhosts:"),
		strings.Contains(msg, "host key mismatch"):
		return transports.ConfigFailure
	}
	return transports.ConnectionError
}

// Close closes the SFTP subsystem, the SSH connection and any agent socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	log.Debug().Str("host", c.config.Host).Dur("connected_for", time.Since(c.connectedAt)).Msg("closing SSH connection")

	if c.sftpClient != nil {
		_ = c.sftpClient.Close()
		c.sftpClient = nil
	}
	err := c.client.Close()
	c.client = nil
	closeQuietly(c.agentConn)
	c.agentConn = nil

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return transports.NewError("disconnect", transports.Other, err)
	}
	return nil
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// NewSession opens a fresh session channel on the connection.
func (c *Client) NewSession() (*ssh.Session, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, transports.NewError("session", transports.ConnectionError, fmt.Errorf("failed to create session: %w", err))
	}
	return session, nil
}

// Config returns the connection configuration.
func (c *Client) Config() *Config {
	return c.config
}

func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, transports.Errorf("get-client", transports.ConnectionError, "not connected")
	}
	return c.client, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
