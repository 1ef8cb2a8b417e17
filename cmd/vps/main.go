// Package main is the entrypoint for the vps CLI, a persistent SSH client
// for a single remote host.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabiopauli/ssh-wrapper/internal/client"
	"github.com/fabiopauli/ssh-wrapper/internal/config"
	"github.com/fabiopauli/ssh-wrapper/internal/security"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	envFile  string
	hostFlag string
	portFlag int
	userFlag string
	keyFlag  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vps",
	Short: "vps - persistent SSH client for a single remote host",
	Long: `vps keeps one auto-recovering SSH connection to a remote host and
exposes command execution, an interactive shell, and file transfer.

Credentials come from the environment or a .env file:
  LOGIN=user@host       target (or HOST and USER_NAME separately)
  PASSWORD=...          password auth
  SSH_KEY_FILE=...      key auth (bare names resolve under ./keys/)`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file with connection settings")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Remote host (overrides environment)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "Remote port (overrides environment)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "Remote user (overrides environment)")
	rootCmd.PersistentFlags().StringVarP(&keyFlag, "key", "i", "", "Private key file (overrides environment)")

	rootCmd.AddCommand(cmdCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
}

// loadConfig builds the connection configuration from the env file, the
// process environment, and any flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if userFlag != "" {
		cfg.User = userFlag
	}
	if keyFlag != "" {
		cfg.KeyFile = keyFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var cmdTimeout int

var cmdCmd = &cobra.Command{
	Use:   "cmd <command>...",
	Short: "Run a single remote command",
	Long: `Execute a command on the remote host and exit with its status.

Examples:
  vps cmd df -h
  vps cmd --timeout 60 "du -sh /var/log"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	cmdCmd.Flags().IntVar(&cmdTimeout, "timeout", 300, "Command timeout in seconds")
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	guard := security.NewGuard(cfg.AllowCommands, cfg.DenyCommands)
	if err := guard.CheckCommand(command); err != nil {
		return err
	}

	conn := client.New(cfg)
	defer conn.Close()

	result, err := conn.Execute(command, time.Duration(cmdTimeout)*time.Second)
	if err != nil {
		return err
	}

	if result.Output != "" {
		fmt.Print(result.Output)
	}
	if result.Error != "" {
		fmt.Fprint(os.Stderr, result.Error)
	}

	// Mirror the remote exit status.
	conn.Close()
	os.Exit(result.ExitStatus)
	return nil
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive shell on the remote host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		conn := client.New(cfg)
		defer func() {
			conn.Close()
			fmt.Println("\nConnection closed.")
		}()

		return conn.Shell()
	},
}
