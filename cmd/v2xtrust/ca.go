package main

import (
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openv2x/v2xtrust/internal/ca"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

// Well-known file names inside a CA directory.
const (
	caCertFile       = "ca.crt"
	caPrivateKeyFile = "ca_pvt_key.pem"
	caPublicKeyFile  = "ca_pub_key.pem"
)

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Certificate Authority management",
	Long: `Manage the root Certificate Authority.

Commands:
  init    Initialize a new root CA
  info    Display CA information

Examples:
  # Create a root CA with an encrypted private key
  v2xtrust ca init --dir ./ca --passphrase "secret"

  # Show CA information
  v2xtrust ca info --dir ./ca`,
}

var caInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new root Certificate Authority",
	Long: `Initialize a new root Certificate Authority.

Generates a CA key pair and a self-signed root certificate. The directory
will contain:
  {dir}/
    ├── ca.crt            # Root certificate (PEM)
    ├── ca_pvt_key.pem    # Private key (PEM, optionally encrypted)
    └── ca_pub_key.pem    # Public key (PEM)

Examples:
  v2xtrust ca init --dir ./ca
  v2xtrust ca init --dir ./ca --name "My Root CA" --algorithm ecdsa-p384
  v2xtrust ca init --dir ./ca --passphrase "secret"`,
	RunE: runCAInit,
}

var caInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display CA information",
	Long:  `Display the subject, validity, and algorithm of a CA certificate.`,
	RunE:  runCAInfo,
}

var (
	caDir        string
	caName       string
	caAlgorithm  string
	caPassphrase string
)

func init() {
	caCmd.AddCommand(caInitCmd)
	caCmd.AddCommand(caInfoCmd)

	flags := caInitCmd.Flags()
	flags.StringVarP(&caDir, "dir", "d", "./ca", "CA directory")
	flags.StringVarP(&caName, "name", "n", ca.DefaultName, "CA common name")
	flags.StringVarP(&caAlgorithm, "algorithm", "a", string(v2xcrypto.DefaultAlgorithm),
		"CA key algorithm (classical only)")
	flags.StringVarP(&caPassphrase, "passphrase", "p", "", "Private key passphrase")

	caInfoCmd.Flags().StringVarP(&caDir, "dir", "d", "./ca", "CA directory")
}

func runCAInit(cmd *cobra.Command, args []string) error {
	alg, err := v2xcrypto.ParseAlgorithm(caAlgorithm)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(caDir, caCertFile)); err == nil {
		return fmt.Errorf("CA already initialized in %s", caDir)
	}
	if err := os.MkdirAll(caDir, 0o700); err != nil {
		return fmt.Errorf("failed to create CA directory: %w", err)
	}

	signer, err := v2xcrypto.GenerateSoftwareSigner(alg)
	if err != nil {
		return err
	}

	authority, err := ca.NewWithSigner(ca.NewMemoryStore(), ca.Config{Name: caName}, signer)
	if err != nil {
		return err
	}

	var passphrase []byte
	if caPassphrase != "" {
		passphrase = []byte(caPassphrase)
	}
	if err := signer.SavePrivateKey(filepath.Join(caDir, caPrivateKeyFile), passphrase); err != nil {
		return err
	}
	if err := signer.SavePublicKey(filepath.Join(caDir, caPublicKeyFile)); err != nil {
		return err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: authority.Certificate().Raw})
	if err := os.WriteFile(filepath.Join(caDir, caCertFile), certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}

	fmt.Printf("CA %q initialized in %s (algorithm: %s)\n", caName, caDir, alg)
	return nil
}

func runCAInfo(cmd *cobra.Command, args []string) error {
	cert, err := loadCACert(caDir)
	if err != nil {
		return err
	}

	alg, err := v2xcrypto.AlgorithmOf(cert.PublicKey)
	if err != nil {
		return err
	}

	fmt.Printf("Subject:     %s\n", cert.Subject)
	fmt.Printf("Serial:      %s\n", cert.SerialNumber)
	fmt.Printf("Algorithm:   %s\n", alg)
	fmt.Printf("Not before:  %s\n", cert.NotBefore.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Not after:   %s\n", cert.NotAfter.Format("2006-01-02 15:04:05 MST"))
	return nil
}
