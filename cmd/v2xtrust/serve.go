package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openv2x/v2xtrust/internal/api"
	"github.com/openv2x/v2xtrust/internal/audit"
	"github.com/openv2x/v2xtrust/internal/ca"
	"github.com/openv2x/v2xtrust/internal/config"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CA admin API server",
	Long: `Run the CA admin API server.

Loads the CA key pair from the CA directory and serves the admin endpoints:
issuance, revocation, status, CRL. Certificate state is held in memory for
the lifetime of the process.

The passphrase may also be supplied via V2X_CA_PASSPHRASE.

Examples:
  v2xtrust serve --dir ./ca --passphrase "secret"
  v2xtrust serve --dir ./ca --config v2xtrust.yaml --listen 0.0.0.0:8470`,
	RunE: runServe,
}

var (
	serveDir        string
	serveConfig     string
	serveListen     string
	servePassphrase string
	serveAuditLog   string
)

func init() {
	flags := serveCmd.Flags()
	flags.StringVarP(&serveDir, "dir", "d", "./ca", "CA directory")
	flags.StringVarP(&serveConfig, "config", "c", "", "Configuration file (YAML)")
	flags.StringVarP(&serveListen, "listen", "l", "", "Listen address (overrides config)")
	flags.StringVarP(&servePassphrase, "passphrase", "p", "", "CA private key passphrase")
	flags.StringVar(&serveAuditLog, "audit-log", "", "Audit log file (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	var cfg *config.Config
	var err error
	if serveConfig != "" {
		cfg, err = config.Load(serveConfig)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Server.ListenAddr = serveListen
	}
	if servePassphrase != "" {
		cfg.CA.Passphrase = servePassphrase
	}
	if serveAuditLog != "" {
		cfg.Audit.LogPath = serveAuditLog
	}

	var passphrase []byte
	if cfg.CA.Passphrase != "" {
		passphrase = []byte(cfg.CA.Passphrase)
	}
	signer, err := v2xcrypto.LoadPrivateKey(filepath.Join(serveDir, caPrivateKeyFile), passphrase)
	if err != nil {
		return fmt.Errorf("failed to load CA key: %w", err)
	}

	auditWriter := audit.Writer(audit.NopWriter{})
	if cfg.Audit.LogPath != "" {
		fw, err := audit.NewFileWriter(cfg.Audit.LogPath)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer fw.Close()
		auditWriter = fw
	}
	if err := auditWriter.Write(audit.KeyAccessed(cfg.CA.Name, "admin API startup")); err != nil {
		return err
	}

	authority, err := ca.NewWithSigner(ca.NewMemoryStore(), ca.Config{
		Name:  cfg.CA.Name,
		Audit: auditWriter,
	}, signer)
	if err != nil {
		return err
	}

	logger.Info().
		Str("ca", cfg.CA.Name).
		Str("algorithm", string(signer.Algorithm())).
		Msg("CA ready")

	handler := api.NewHandler(authority, version,
		cfg.Security.PoolSize, time.Duration(cfg.Security.CertValidity), logger)
	server := api.NewServer(cfg.Server.ListenAddr, handler, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx)
}
