package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openv2x/v2xtrust/internal/api"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a pseudonym certificate batch",
	Long: `Issue a batch of short-lived pseudonym certificates for an entity.

Sends the entity's public key to a running admin API server. The issued
certificates are printed as PEM, or written one file per certificate when
--out-dir is given.

Examples:
  v2xtrust issue --subject veh-001 --type vehicle --pub veh-001.pub
  v2xtrust issue --subject rsu-12 --type infrastructure --pub rsu.pub --count 5 --validity 10m
  v2xtrust issue --subject veh-001 --type vehicle --pub veh-001.pub --out-dir ./certs`,
	RunE: runIssue,
}

var (
	issueSubject  string
	issueType     string
	issuePubFile  string
	issueCount    int
	issueValidity string
	issueOutDir   string
)

func init() {
	flags := issueCmd.Flags()
	flags.StringVar(&serverURL, "server", "http://127.0.0.1:8470", "Admin API base URL")
	flags.StringVarP(&issueSubject, "subject", "s", "", "Entity identifier (required)")
	flags.StringVarP(&issueType, "type", "t", "vehicle", "Entity type: vehicle, pedestrian, infrastructure")
	flags.StringVar(&issuePubFile, "pub", "", "Entity public key file, PEM (required)")
	flags.IntVarP(&issueCount, "count", "c", 0, "Number of certificates (0 = server default)")
	flags.StringVar(&issueValidity, "validity", "", "Per-certificate lifetime, e.g. 10m (empty = server default)")
	flags.StringVar(&issueOutDir, "out-dir", "", "Write one PEM file per certificate into this directory")
	_ = issueCmd.MarkFlagRequired("subject")
	_ = issueCmd.MarkFlagRequired("pub")
}

func runIssue(cmd *cobra.Command, args []string) error {
	pubPEM, err := os.ReadFile(issuePubFile)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	client := newAdminClient(serverURL)
	var resp api.IssueResponse
	err = client.postJSON("/api/v1/certificates", api.IssueRequest{
		SubjectID:  issueSubject,
		EntityType: issueType,
		PublicKey:  string(pubPEM),
		Count:      issueCount,
		Validity:   issueValidity,
	}, &resp)
	if err != nil {
		return err
	}

	if issueOutDir != "" {
		if err := os.MkdirAll(issueOutDir, 0o755); err != nil {
			return err
		}
		for _, info := range resp.Certificates {
			name := filepath.Join(issueOutDir, fmt.Sprintf("%s-%d.crt", issueSubject, info.Serial))
			if err := os.WriteFile(name, []byte(info.PEM), 0o644); err != nil {
				return err
			}
		}
		fmt.Printf("Issued %d certificates for %s into %s\n", len(resp.Certificates), issueSubject, issueOutDir)
		return nil
	}

	for _, info := range resp.Certificates {
		fmt.Printf("# serial %d, %s, valid %s to %s\n", info.Serial, info.Subject, info.NotBefore, info.NotAfter)
		fmt.Print(info.PEM)
	}
	return nil
}
