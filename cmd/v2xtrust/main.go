// Command v2xtrust manages the V2X trust layer: a root CA, entity key
// material, pseudonym certificate batches, and the admin API server.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "v2xtrust",
	Short: "V2X trust layer - CA and credential management for broadcast safety messages",
	Long: `v2xtrust manages the trust layer of a V2X deployment: a root Certificate
Authority, per-entity key material, short-lived pseudonym certificate pools,
revocation, and signed message verification.

Examples:
  # Initialize a root CA
  v2xtrust ca init --dir ./ca --passphrase "secret"

  # Generate an entity key pair
  v2xtrust key gen --algorithm ecdsa-p256 --out veh-001.key

  # Start the admin API
  v2xtrust serve --dir ./ca --passphrase "secret"

  # Issue a pseudonym batch against a running server
  v2xtrust issue --subject veh-001 --type vehicle --pub veh-001.pub

  # Revoke a certificate
  v2xtrust revoke 42 --reason key-compromise

  # Run a self-contained signing round-trip
  v2xtrust simulate --vehicles 3 --messages 25`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(caCmd)    // v2xtrust ca ...
	rootCmd.AddCommand(keyCmd)   // v2xtrust key ...
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(crlCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}

// newLogger builds the zerolog logger used by all commands.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
