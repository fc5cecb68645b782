package main

import (
	"fmt"

	"github.com/spf13/cobra"

	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Key management commands",
	Long:  `Commands for generating and managing entity key pairs.`,
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a key pair",
	Long: `Generate a new key pair and save it as PEM.

Supported algorithms:
  Classical:
    ecdsa-p256   - ECDSA with P-256 curve (default)
    ecdsa-p384   - ECDSA with P-384 curve
    ed25519      - Ed25519 (EdDSA)

  Post-Quantum:
    ml-dsa-44    - ML-DSA-44 (NIST Level 1)
    ml-dsa-65    - ML-DSA-65 (NIST Level 3)
    ml-dsa-87    - ML-DSA-87 (NIST Level 5)

PQC keys can sign messages but cannot back X.509 certificates; use a
classical algorithm for keys that will be enrolled with the CA.

Examples:
  v2xtrust key gen --algorithm ecdsa-p256 --out veh-001.key
  v2xtrust key gen --algorithm ml-dsa-65 --out pqc.key --passphrase secret`,
	RunE: runKeyGen,
}

var keyPubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Extract public key from private key",
	Long: `Extract the public key from a private key file.

The output is a PEM-encoded public key suitable for certificate enrollment.

Examples:
  v2xtrust key pub --key veh-001.key --out veh-001.pub
  v2xtrust key pub --key encrypted.key --passphrase secret --out pub.pem`,
	RunE: runKeyPub,
}

var (
	keyGenAlgorithm  string
	keyGenOut        string
	keyGenPassphrase string

	keyPubKey        string
	keyPubOut        string
	keyPubPassphrase string
)

func init() {
	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyPubCmd)

	flags := keyGenCmd.Flags()
	flags.StringVarP(&keyGenAlgorithm, "algorithm", "a", string(v2xcrypto.DefaultAlgorithm), "Key algorithm")
	flags.StringVarP(&keyGenOut, "out", "o", "", "Output file (required)")
	flags.StringVarP(&keyGenPassphrase, "passphrase", "p", "", "Passphrase for encryption")
	_ = keyGenCmd.MarkFlagRequired("out")

	keyPubCmd.Flags().StringVarP(&keyPubKey, "key", "k", "", "Input private key file (required)")
	keyPubCmd.Flags().StringVarP(&keyPubOut, "out", "o", "", "Output public key file (required)")
	keyPubCmd.Flags().StringVar(&keyPubPassphrase, "passphrase", "", "Passphrase for encrypted key")
	_ = keyPubCmd.MarkFlagRequired("key")
	_ = keyPubCmd.MarkFlagRequired("out")
}

func runKeyGen(cmd *cobra.Command, args []string) error {
	alg, err := v2xcrypto.ParseAlgorithm(keyGenAlgorithm)
	if err != nil {
		return err
	}

	signer, err := v2xcrypto.GenerateSoftwareSigner(alg)
	if err != nil {
		return err
	}

	var passphrase []byte
	if keyGenPassphrase != "" {
		passphrase = []byte(keyGenPassphrase)
	}
	if err := signer.SavePrivateKey(keyGenOut, passphrase); err != nil {
		return err
	}

	fmt.Printf("Generated %s key pair: %s\n", alg, keyGenOut)
	return nil
}

func runKeyPub(cmd *cobra.Command, args []string) error {
	var passphrase []byte
	if keyPubPassphrase != "" {
		passphrase = []byte(keyPubPassphrase)
	}

	signer, err := v2xcrypto.LoadPrivateKey(keyPubKey, passphrase)
	if err != nil {
		return err
	}
	if err := signer.SavePublicKey(keyPubOut); err != nil {
		return err
	}

	fmt.Printf("Extracted %s public key: %s\n", signer.Algorithm(), keyPubOut)
	return nil
}
