package ssh

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g. "connect", "execute", "upload").
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary indicates the error may clear up on retry, such as a
	// connection refused while the instance is still booting.
	IsTemporary bool

	// IsAuthError indicates the failure is an authentication problem.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether the error is retryable. The readiness poller
// keys off this.
func (e *TransportError) Temporary() bool { return e.IsTemporary }

// Client is an SSH connection to one instance. Connect lazily establishes
// the connection; Close releases it.
type Client struct {
	config *Config

	mu     sync.Mutex
	client *ssh.Client
}

// NewClient creates a client for the given configuration.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection if one is not already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Str("user", c.config.User).Msg("establishing SSH connection")

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		done <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case res := <-done:
		if res.err != nil {
			// Dial failures before authentication (refused, unreachable,
			// reset) are temporary while the instance boots; a rejected key
			// is not going to fix itself.
			temporary := !isAuthFailure(res.err)
			return &TransportError{
				Op:          "connect",
				Err:         res.err,
				IsTemporary: temporary,
				IsAuthError: !temporary,
			}
		}
		c.client = res.client
		return nil
	}
}

// isAuthFailure reports whether the dial error was an authentication
// rejection rather than a connectivity problem.
func isAuthFailure(err error) bool {
	// x/crypto/ssh reports handshake auth failures with this prefix and no
	// typed error to match on.
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// Close terminates the connection. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Probe verifies the instance is reachable over SSH by running a trivial
// command. Connection failures come back temporary, so readiness polling
// retries them.
func (c *Client) Probe(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	_, _, err := c.ExecuteCommand(ctx, "true")
	return err
}
