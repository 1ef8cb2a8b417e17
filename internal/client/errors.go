package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Local precondition failures, reported before the connection lock is taken
// or the transport is touched.
var (
	ErrNotFound       = errors.New("no such file")
	ErrNotADirectory  = errors.New("not a directory")
	ErrNotRegularFile = errors.New("not a regular file")
)

// ConnectError reports a failed connect or reconnect. It is fatal to the
// in-flight operation once the single retry is spent.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportFault wraps a mid-operation network or protocol failure. It is
// the class of error that triggers the reconnect-and-retry cycle.
type TransportFault struct {
	Op  string
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport fault during %s: %v", e.Op, e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }

// RemoteIOFault wraps an expected remote I/O error (missing path, permission
// denied). It is reported directly and never retried.
type RemoteIOFault struct {
	Op   string
	Path string
	Err  error
}

func (e *RemoteIOFault) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteIOFault) Unwrap() error { return e.Err }

// ErrCommandTimeout is returned when a remote command outlives its deadline.
// A timeout counts as a fault and is subject to the same one-retry policy.
var ErrCommandTimeout = errors.New("command execution timed out")

// isTransportFault decides whether an error means the transport itself is
// broken (reconnect and retry once) or the remote side rejected the request
// (report directly). SFTP status errors carry a remote errno and are never
// transport faults; everything that smells like a dead socket is.
func isTransportFault(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return false
	}

	if errors.Is(err, sftp.ErrSshFxConnectionLost) || errors.Is(err, sftp.ErrSshFxNoConnection) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, ErrCommandTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var openErr *ssh.OpenChannelError
	if errors.As(err, &openErr) {
		return false
	}

	// ssh.ExitError means the command ran and terminated; it is
	// handled by the executor before classification. Any other error from
	// the ssh layer is a protocol-level failure.
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return false
	}

	var fault *TransportFault
	return errors.As(err, &fault)
}
