// Package client implements a persistent, self-healing SSH connection to a
// single remote host: command execution, SFTP file and directory transfer,
// and an interactive shell. All operations are serialized through one lock
// so at most one of them touches the transport at a time, even across a
// transparent reconnect.
package client

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/fabiopauli/ssh-wrapper/internal/config"
)

const defaultReconnectBackoff = 2 * time.Second

// Conn is one logical session to a remote host. The zero transport state is
// "disconnected"; every operation re-establishes it on demand, so a Conn
// stays usable for the life of the process.
type Conn struct {
	cfg *config.Config

	mu   sync.Mutex
	ssh  *ssh.Client
	sftp *sftp.Client

	// backoff between dropping a dead transport and redialing.
	backoff time.Duration

	// hostKeys overrides the default trust-on-first-use policy when set.
	hostKeys ssh.HostKeyCallback
}

// New creates a Conn from a validated configuration. No network activity
// happens until the first operation.
func New(cfg *config.Config) *Conn {
	return &Conn{
		cfg:     cfg,
		backoff: defaultReconnectBackoff,
	}
}

// SetHostKeyCallback overrides the default trust-on-first-use host key
// policy. It must be set before the first operation dials.
func (c *Conn) SetHostKeyCallback(cb ssh.HostKeyCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostKeys = cb
}

// Addr returns the host:port endpoint this Conn dials.
func (c *Conn) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Connect establishes a new transport to the configured endpoint. Key-based
// auth is used when a key file is configured, password auth otherwise. The
// caller must hold c.mu.
func (c *Conn) connectLocked() error {
	hostKeys := c.hostKeys
	if hostKeys == nil {
		hostKeys = trustOnFirstUse(knownHostsPath())
	}
	sshConfig := &ssh.ClientConfig{
		User:            c.cfg.User,
		HostKeyCallback: hostKeys,
		Timeout:         c.cfg.ConnectTimeout,
	}

	if c.cfg.KeyFile != "" {
		key, err := os.ReadFile(c.cfg.KeyFile)
		if err != nil {
			return &ConnectError{Addr: c.Addr(), Err: fmt.Errorf("unable to read private key: %v", err)}
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return &ConnectError{Addr: c.Addr(), Err: fmt.Errorf("unable to parse private key: %v", err)}
		}
		sshConfig.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	} else {
		sshConfig.Auth = []ssh.AuthMethod{ssh.Password(c.cfg.Password)}
	}

	client, err := ssh.Dial("tcp", c.Addr(), sshConfig)
	if err != nil {
		return &ConnectError{Addr: c.Addr(), Err: err}
	}

	c.ssh = client
	log.Printf("Connected to %s", c.Addr())
	return nil
}

// Connect dials the remote host immediately. Operations call it lazily via
// ensureConnected, so using Connect directly is only needed to fail fast.
func (c *Conn) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssh != nil {
		return nil
	}
	return c.connectLocked()
}

// reconnectLocked tears down whatever transport exists, waits the fixed
// backoff to avoid hammering a flapping endpoint, and dials again. Close
// errors are suppressed; connect errors propagate.
func (c *Conn) reconnectLocked() error {
	log.Printf("Reconnecting to %s...", c.Addr())
	c.closeLocked()
	time.Sleep(c.backoff)
	return c.connectLocked()
}

// ensureConnected is called at the start of every exclusive operation, with
// c.mu held. If the transport is missing or fails the health probe it is
// replaced.
func (c *Conn) ensureConnected() error {
	if c.ssh == nil {
		// Fresh connect, no backoff: nothing was torn down.
		return c.connectLocked()
	}
	if c.isAliveLocked() {
		return nil
	}
	return c.reconnectLocked()
}

// closeLocked shuts down the sub-channel then the transport, best effort.
func (c *Conn) closeLocked() {
	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.ssh != nil {
		_ = c.ssh.Close()
		c.ssh = nil
	}
}

// Close releases the transport. It is idempotent and never returns an
// error; a later operation on the same Conn triggers a fresh connect.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}
