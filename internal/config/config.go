// Package config loads the SSH target configuration from the environment
// and an optional .env file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything needed to reach a single remote host. It is built
// once at startup and passed by reference into the connection layer; core
// code never reads the environment directly.
type Config struct {
	// Login is the combined "user@host" form. When set it populates User
	// and Host unless those are given explicitly.
	Login string `envconfig:"LOGIN"`

	Host string `envconfig:"HOST"`
	Port int    `envconfig:"PORT" default:"22"`
	User string `envconfig:"USER_NAME"`

	// Exactly one credential is required. KeyFile wins over Password when
	// both are present.
	Password string `envconfig:"PASSWORD"`
	KeyFile  string `envconfig:"SSH_KEY_FILE"`

	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`

	// Optional command guardrails, comma separated prefix lists. An empty
	// allow list permits everything not denied.
	AllowCommands []string `envconfig:"ALLOW_COMMANDS"`
	DenyCommands  []string `envconfig:"DENY_COMMANDS"`
}

// ConfigError reports a missing or contradictory configuration value. It is
// fatal; the caller should not retry.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// Load reads the optional env file, then the process environment. The
// result still needs Validate; callers may layer flag overrides on top
// first.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize resolves the user@host login form and the key file location.
func (c *Config) normalize() error {
	if c.Login != "" {
		user, host, ok := strings.Cut(c.Login, "@")
		if !ok {
			return &ConfigError{Reason: fmt.Sprintf("LOGIN %q must be in user@host form", c.Login)}
		}
		if c.User == "" {
			c.User = user
		}
		if c.Host == "" {
			c.Host = host
		}
	}

	// A bare key file name refers to the local keys/ directory.
	if c.KeyFile != "" && !strings.ContainsRune(c.KeyFile, os.PathSeparator) {
		candidate := filepath.Join("keys", c.KeyFile)
		if _, err := os.Stat(candidate); err == nil {
			c.KeyFile = candidate
		}
	}

	return nil
}

// Validate checks that the target and at least one credential are present.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ConfigError{Reason: "host is required (set LOGIN=user@host or HOST)"}
	}
	if c.User == "" {
		return &ConfigError{Reason: "user is required (set LOGIN=user@host or USER_NAME)"}
	}
	if c.Password == "" && c.KeyFile == "" {
		return &ConfigError{Reason: "either PASSWORD or SSH_KEY_FILE must be set"}
	}
	if c.KeyFile != "" {
		if _, err := os.Stat(c.KeyFile); err != nil {
			return &ConfigError{Reason: fmt.Sprintf("SSH key file %q not found", c.KeyFile)}
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Reason: fmt.Sprintf("invalid port %d", c.Port)}
	}
	return nil
}

// loadEnvFile reads KEY=value lines into the process environment. Missing
// file is not an error. Values already present in the environment win.
func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		// Historic .env files use lowercase keys ("login", "password").
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
