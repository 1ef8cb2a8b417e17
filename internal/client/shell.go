package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// Shell opens an interactive shell on a pseudo-terminal sized to the local
// terminal, relays bytes between local stdin/stdout and the remote channel,
// and forwards local resize signals. It returns when the remote side closes
// the channel or the user exits; the local terminal mode is restored on
// every exit path. As a long-lived exclusive foreground operation it holds
// the connection lock only for setup, not for the relay itself.
func (c *Conn) Shell() error {
	c.mu.Lock()
	if err := c.ensureConnected(); err != nil {
		c.mu.Unlock()
		return err
	}
	session, err := c.ssh.NewSession()
	c.mu.Unlock()
	if err != nil {
		return &TransportFault{Op: "shell", Err: fmt.Errorf("failed to create session: %v", err)}
	}
	defer session.Close()

	stdinFd := int(os.Stdin.Fd())
	stdoutFd := int(os.Stdout.Fd())

	width, height := 80, 24
	if term.IsTerminal(stdoutFd) {
		if w, h, err := term.GetSize(stdoutFd); err == nil && w > 0 && h > 0 {
			width, height = w, h
		}
	}

	termType := os.Getenv("TERM")
	if termType == "" {
		termType = "xterm-256color"
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(termType, height, width, modes); err != nil {
		return &TransportFault{Op: "shell", Err: fmt.Errorf("failed to request pty: %v", err)}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return &TransportFault{Op: "shell", Err: err}
	}
	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer func() { _ = term.Restore(stdinFd, oldState) }()
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer func() {
		// Stop guarantees no further sends, so the close is safe and lets
		// the forwarder goroutine exit.
		signal.Stop(winch)
		close(winch)
	}()
	go forwardResizes(session, winch, stdoutFd)

	if err := session.Shell(); err != nil {
		return &TransportFault{Op: "shell", Err: err}
	}

	go func() {
		_, _ = io.Copy(stdin, os.Stdin)
		_ = stdin.Close()
	}()

	if err := session.Wait(); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// The user's shell exited with a status; not a failure of ours.
			return nil
		}
		var missingErr *ssh.ExitMissingError
		if errors.As(err, &missingErr) {
			return nil
		}
		return &TransportFault{Op: "shell", Err: err}
	}
	return nil
}

// forwardResizes pushes local terminal size changes to the remote PTY. It
// returns when the signal channel is closed.
func forwardResizes(session *ssh.Session, winch <-chan os.Signal, fd int) {
	for range winch {
		if w, h, err := term.GetSize(fd); err == nil && w > 0 && h > 0 {
			_ = session.WindowChange(h, w)
		}
	}
}
