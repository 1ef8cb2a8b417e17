package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/fabiopauli/ssh-wrapper/internal/config"
)

const (
	testUser     = "testuser"
	testPassword = "testpass"
)

// execOutcome is what the test server does with one exec request.
type execOutcome struct {
	stdout string
	stderr string
	status uint32
	// killConn drops the whole transport instead of answering, simulating
	// a mid-command network failure.
	killConn bool
}

// testServer is a minimal in-process SSH server: password auth, exec
// channels with scripted outcomes, and a real SFTP subsystem serving the
// local filesystem (tests use temp dirs as "remote" paths).
type testServer struct {
	t        *testing.T
	listener net.Listener
	config   *ssh.ServerConfig

	handshakes atomic.Int32
	execCalls  atomic.Int32

	mu     sync.Mutex
	onExec func(command string, call int) execOutcome
	conns  []*ssh.ServerConn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == testUser && string(password) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("authentication failed for %s", meta.User())
		},
	}
	cfg.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{t: t, listener: listener, config: cfg}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
}

// Port returns the port the server listens on.
func (s *testServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// setExec scripts the outcome of subsequent exec requests. call is 1-based.
func (s *testServer) setExec(fn func(command string, call int) execOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExec = fn
}

// dropConnections closes every established transport, simulating a network
// cut between operations.
func (s *testServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func (s *testServer) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(nc)
	}
}

func (s *testServer) handleConn(nc net.Conn) {
	serverConn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		return
	}
	s.handshakes.Add(1)

	s.mu.Lock()
	s.conns = append(s.conns, serverConn)
	s.mu.Unlock()

	// Keepalive probes land here; DiscardRequests answers them.
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(serverConn, ch, requests)
	}
}

func (s *testServer) handleSession(conn *ssh.ServerConn, ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)

			call := int(s.execCalls.Add(1))
			outcome := s.execOutcomeFor(payload.Command, call)
			if outcome.killConn {
				_ = conn.Close()
				return
			}

			_, _ = io.WriteString(ch, outcome.stdout)
			_, _ = io.WriteString(ch.Stderr(), outcome.stderr)
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{outcome.status}))
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			_ = server.Serve()
			return

		default:
			_ = req.Reply(false, nil)
		}
	}
}

// execOutcomeFor consults the scripted handler, falling back to a tiny
// built-in command set.
func (s *testServer) execOutcomeFor(command string, call int) execOutcome {
	s.mu.Lock()
	fn := s.onExec
	s.mu.Unlock()
	if fn != nil {
		return fn(command, call)
	}

	switch {
	case strings.HasPrefix(command, "echo "):
		return execOutcome{stdout: strings.TrimPrefix(command, "echo ") + "\n"}
	case command == "true":
		return execOutcome{}
	case command == "false":
		return execOutcome{status: 1}
	case strings.HasPrefix(command, "sleep"):
		time.Sleep(5 * time.Second)
		return execOutcome{}
	default:
		return execOutcome{stderr: "command not found: " + command + "\n", status: 127}
	}
}

// testConn returns a Conn wired to the test server with a short reconnect
// backoff so retry paths stay fast.
func testConn(t *testing.T, s *testServer) *Conn {
	t.Helper()
	cfg := &config.Config{
		Host:           "127.0.0.1",
		Port:           s.Port(),
		User:           testUser,
		Password:       testPassword,
		ConnectTimeout: 5 * time.Second,
	}
	c := New(cfg)
	c.backoff = 10 * time.Millisecond
	c.hostKeys = ssh.InsecureIgnoreHostKey()
	t.Cleanup(c.Close)
	return c
}
