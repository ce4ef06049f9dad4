// Package ssh provides the remote-shell transport used to reach provisioned
// instances: command execution, file upload, and a connectivity probe for
// readiness polling.
package ssh

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config holds SSH connection settings for one instance.
type Config struct {
	// Host is the instance address or hostname.
	Host string

	// Port is the SSH port (default 22).
	Port int

	// User is the remote login user.
	User string

	// PrivateKeyPath is the path to the private key used for authentication.
	PrivateKeyPath string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// CommandTimeout bounds individual command execution.
	CommandTimeout time.Duration
}

// DefaultConfig returns a Config with defaults suitable for freshly
// provisioned instances.
func DefaultConfig(host, user, privateKeyPath string) *Config {
	return &Config{
		Host:           host,
		Port:           22,
		User:           user,
		PrivateKeyPath: privateKeyPath,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 5 * time.Minute,
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.PrivateKeyPath == "" {
		return fmt.Errorf("private key path is required")
	}
	return nil
}

// Address returns the host:port dial address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientConfig builds the underlying ssh.ClientConfig. Host key verification
// is disabled: the instances this tool connects to were created moments
// earlier and their host keys are not known anywhere yet.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", c.PrivateKeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", c.PrivateKeyPath, err)
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // see above
		Timeout:         c.ConnectTimeout,
	}, nil
}
