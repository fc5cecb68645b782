package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openv2x/v2xtrust/internal/api"
)

var crlCmd = &cobra.Command{
	Use:   "crl",
	Short: "Certificate Revocation List operations",
	Long: `Inspect and fetch the Certificate Revocation List.

Commands:
  list     Print the revoked certificates
  fetch    Download the signed CRL (DER)

Examples:
  v2xtrust crl list
  v2xtrust crl fetch --out v2x.crl`,
}

var crlListCmd = &cobra.Command{
	Use:   "list",
	Short: "List revoked certificates",
	RunE:  runCRLList,
}

var crlFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the signed CRL in DER format",
	RunE:  runCRLFetch,
}

var crlOut string

func init() {
	crlCmd.AddCommand(crlListCmd)
	crlCmd.AddCommand(crlFetchCmd)

	crlCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8470", "Admin API base URL")
	crlFetchCmd.Flags().StringVarP(&crlOut, "out", "o", "v2x.crl", "Output file")
}

func runCRLList(cmd *cobra.Command, args []string) error {
	client := newAdminClient(serverURL)
	var list api.RevocationListResponse
	if err := client.getJSON("/api/v1/revocations", &list); err != nil {
		return err
	}

	if len(list.Revocations) == 0 {
		fmt.Println("No revoked certificates.")
		return nil
	}

	fmt.Printf("%-10s %-30s %-22s %s\n", "SERIAL", "SUBJECT", "REASON", "REVOKED AT")
	for _, rev := range list.Revocations {
		fmt.Printf("%-10d %-30s %-22s %s\n", rev.Serial, rev.Subject, rev.Reason, rev.RevokedAt)
	}
	return nil
}

func runCRLFetch(cmd *cobra.Command, args []string) error {
	client := newAdminClient(serverURL)
	der, err := client.getRaw("/api/v1/crl")
	if err != nil {
		return err
	}

	if err := os.WriteFile(crlOut, der, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote CRL (%d bytes) to %s\n", len(der), crlOut)
	return nil
}
