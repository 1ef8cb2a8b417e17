// Package security gates remote command execution behind prefix-based
// allow and deny lists, so destructive commands can be locked out of a
// shared .env without touching the remote host.
package security

import (
	"fmt"
	"strings"
)

// Guard decides whether a command may be sent to the remote host. The
// zero-value Guard permits everything.
type Guard struct {
	allowed []string
	denied  []string
}

// NewGuard builds a Guard from prefix lists. Entries are trimmed; empty
// entries are dropped.
func NewGuard(allowed, denied []string) *Guard {
	return &Guard{
		allowed: cleanList(allowed),
		denied:  cleanList(denied),
	}
}

// CheckCommand verifies that a command is permitted. Deny entries are
// checked first; when the allow list is empty every remaining command
// passes, otherwise the command must match an allowed prefix.
func (g *Guard) CheckCommand(command string) error {
	command = strings.TrimSpace(command)

	for _, denied := range g.denied {
		if strings.HasPrefix(command, denied) {
			return fmt.Errorf("command %q is denied (matches %q)", command, denied)
		}
	}

	if len(g.allowed) == 0 {
		return nil
	}

	for _, allowed := range g.allowed {
		if strings.HasPrefix(command, allowed) {
			return nil
		}
	}

	return fmt.Errorf("command %q is not in the allowed list", command)
}

func cleanList(list []string) []string {
	var out []string
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
