package client

// isAliveLocked reports whether the established transport still responds.
// It sends a zero-effect keepalive request and converts any failure into
// false; the check is advisory since the probe races against real usage,
// but it is the only local signal available before trusting the transport.
// Caller must hold c.mu.
func (c *Conn) isAliveLocked() bool {
	if c.ssh == nil {
		return false
	}
	_, _, err := c.ssh.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// IsAlive probes the transport without mutating it. Exposed for callers
// that want to report connection state.
func (c *Conn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAliveLocked()
}
