package client

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabiopauli/ssh-wrapper/internal/config"
	"golang.org/x/crypto/ssh"
)

func TestAddr(t *testing.T) {
	c := New(&config.Config{Host: "example.com", Port: 2222})
	assert.Equal(t, "example.com:2222", c.Addr())
}

func TestConnectBadCredentials(t *testing.T) {
	s := newTestServer(t)

	cfg := &config.Config{
		Host:           "127.0.0.1",
		Port:           s.Port(),
		User:           testUser,
		Password:       "wrong",
		ConnectTimeout: 5 * time.Second,
	}
	c := New(cfg)
	c.hostKeys = ssh.InsecureIgnoreHostKey()
	defer c.Close()

	err := c.Connect()
	require.Error(t, err)

	var connErr *ConnectError
	assert.True(t, errors.As(err, &connErr), "expected ConnectError, got %v", err)
	assert.Contains(t, connErr.Addr, fmt.Sprintf(":%d", s.Port()))
}

func TestConnectUnreachableEndpoint(t *testing.T) {
	s := newTestServer(t)
	port := s.Port()
	s.Close()

	cfg := &config.Config{
		Host:           "127.0.0.1",
		Port:           port,
		User:           testUser,
		Password:       testPassword,
		ConnectTimeout: time.Second,
	}
	c := New(cfg)
	c.hostKeys = ssh.InsecureIgnoreHostKey()
	defer c.Close()

	var connErr *ConnectError
	err := c.Connect()
	require.Error(t, err)
	assert.True(t, errors.As(err, &connErr))
}

func TestIsAlive(t *testing.T) {
	s := newTestServer(t)
	c := testConn(t, s)

	assert.False(t, c.IsAlive(), "no transport yet")

	require.NoError(t, c.Connect())
	assert.True(t, c.IsAlive())

	s.dropConnections()
	assert.False(t, c.IsAlive(), "probe must fail on a dead transport")
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	c := testConn(t, s)

	require.NoError(t, c.Connect())
	c.Close()
	c.Close()

	// A later operation simply reconnects.
	result, err := c.Execute("echo back", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "back\n", result.Output)
	assert.Equal(t, int32(2), s.handshakes.Load())
}

func TestEnsureConnectedHealsStaleTransport(t *testing.T) {
	s := newTestServer(t)
	c := testConn(t, s)

	require.NoError(t, c.Connect())
	s.dropConnections()

	result, err := c.Execute("echo healed", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "healed\n", result.Output)
	assert.Equal(t, int32(2), s.handshakes.Load(), "one reconnect expected")
}

func TestConnectIsNoOpWhenConnected(t *testing.T) {
	s := newTestServer(t)
	c := testConn(t, s)

	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())
	assert.Equal(t, int32(1), s.handshakes.Load())
}

func TestOperationsAreSerialized(t *testing.T) {
	s := newTestServer(t)
	c := testConn(t, s)

	// Two commands raced from separate goroutines; the exclusion lock must
	// serialize them onto the single transport.
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Execute("echo race", 5*time.Second)
			done <- err
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), s.handshakes.Load())
}
