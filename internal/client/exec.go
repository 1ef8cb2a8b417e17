package client

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultCommandTimeout bounds Execute when the caller passes no timeout.
const DefaultCommandTimeout = 30 * time.Second

// Execute runs one remote command to completion, draining stdout and stderr
// fully and capturing the numeric exit status. A non-zero exit status is a
// normal result, not an error. On an execution-time fault (dead transport,
// timeout) the connection is re-established and the command re-run exactly
// once; the second outcome is final.
func (c *Conn) Execute(command string, timeout time.Duration) (CommandResult, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return CommandResult{}, err
	}

	result, err := c.runCommandLocked(command, timeout)
	if err == nil {
		return result, nil
	}

	log.Printf("Command execution failed: %v", err)
	if err := c.reconnectLocked(); err != nil {
		return CommandResult{}, err
	}
	return c.runCommandLocked(command, timeout)
}

// runCommandLocked performs a single attempt over a fresh command channel.
// Caller must hold c.mu with a live transport.
func (c *Conn) runCommandLocked(command string, timeout time.Duration) (CommandResult, error) {
	session, err := c.ssh.NewSession()
	if err != nil {
		return CommandResult{}, &TransportFault{Op: "exec", Err: fmt.Errorf("failed to create session: %v", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(command)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-errCh:
	case <-timer.C:
		// Closing the session tears down the channel; the remote process is
		// not cancellable beyond that.
		session.Close()
		<-errCh
		return CommandResult{}, &TransportFault{Op: "exec", Err: ErrCommandTimeout}
	}

	result := CommandResult{
		Output: stdout.String(),
		Error:  stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// The command ran and terminated; its status is the result.
			result.ExitStatus = exitErr.ExitStatus()
			return result, nil
		}
		var missingErr *ssh.ExitMissingError
		if errors.As(err, &missingErr) {
			// Channel closed without an exit status: the transport died
			// under the command.
			return CommandResult{}, &TransportFault{Op: "exec", Err: err}
		}
		return CommandResult{}, &TransportFault{Op: "exec", Err: err}
	}

	return result, nil
}
