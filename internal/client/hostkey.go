package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// knownHostsPath returns the user's known_hosts file, or "" when no home
// directory can be determined.
func knownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// trustOnFirstUse returns a host key callback implementing the
// accept-and-remember policy: a host never seen before is recorded in the
// known_hosts file and accepted; a host whose recorded key has changed is
// rejected. With an empty path the callback accepts everything, which
// matches environments without a home directory (CI containers).
func trustOnFirstUse(path string) ssh.HostKeyCallback {
	if path == "" {
		return ssh.InsecureIgnoreHostKey()
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("failed to create known_hosts directory: %v", err)
		}
		// Make sure the file exists so knownhosts.New can parse it.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open known_hosts: %v", err)
		}
		f.Close()

		check, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("failed to parse known_hosts: %v", err)
		}

		err = check(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			// First contact: remember the key.
			out, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("failed to record host key: %v", err)
			}
			defer out.Close()
			line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
			if _, err := fmt.Fprintln(out, line); err != nil {
				return fmt.Errorf("failed to record host key: %v", err)
			}
			return nil
		}

		// Recorded key differs from what the server presented.
		return err
	}
}
