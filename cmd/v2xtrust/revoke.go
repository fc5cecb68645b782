package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openv2x/v2xtrust/internal/api"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <serial>",
	Short: "Revoke a certificate",
	Long: `Revoke a certificate by serial number.

Revocation is immediate and permanent; already-broadcast messages signed
with the certificate fail verification from this point on.

Reasons: unspecified, key-compromise, affiliation-changed, superseded,
cessation, hold, privilegewithdrawn.

Examples:
  v2xtrust revoke 42
  v2xtrust revoke 42 --reason key-compromise`,
	Args: cobra.ExactArgs(1),
	RunE: runRevoke,
}

var revokeReason string

func init() {
	flags := revokeCmd.Flags()
	flags.StringVar(&serverURL, "server", "http://127.0.0.1:8470", "Admin API base URL")
	flags.StringVarP(&revokeReason, "reason", "r", "unspecified", "Revocation reason")
}

func runRevoke(cmd *cobra.Command, args []string) error {
	serial, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("serial must be a decimal integer: %q", args[0])
	}

	client := newAdminClient(serverURL)
	var info api.RevocationInfo
	err = client.postJSON("/api/v1/revocations", api.RevokeRequest{
		Serial: serial,
		Reason: revokeReason,
	}, &info)
	if err != nil {
		return err
	}

	fmt.Printf("Revoked serial %d (reason: %s) at %s\n", info.Serial, info.Reason, info.RevokedAt)
	return nil
}
