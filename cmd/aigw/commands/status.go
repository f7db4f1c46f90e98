package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talentops/ai-gateway/internal/ledger"
)

// NewStatusCmd constructs the `aigw status` command, which reports the
// ingestion ledger record for a document.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [document-id]",
		Short: "Show the ingestion status of a document",
		Long: `Show the ingestion ledger record for a document id.

Reports the last known state (processing, indexed, failed), the chunk count,
and for failed ingestions the step that failed and why.

Examples:
  aigw status hr-leave-policy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := os.Getenv("LEDGER_DB")
			if dbPath == "" || dbPath == "disabled" {
				var err error
				dbPath, err = ledger.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("status: could not resolve ledger path: %w", err)
				}
			}

			led, err := ledger.Open(dbPath)
			if err != nil {
				return fmt.Errorf("status: failed to open ledger: %w", err)
			}
			defer led.Close()

			rec, err := led.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("status: no record for document %q", args[0])
				}
				return fmt.Errorf("status: %w", err)
			}

			fmt.Printf("document:  %s\n", rec.DocumentID)
			fmt.Printf("status:    %s\n", rec.Status)
			fmt.Printf("chunks:    %d\n", rec.ChunkCount)
			if rec.Status == ledger.StatusFailed {
				fmt.Printf("failed at: %s\n", rec.FailedStep)
				fmt.Printf("detail:    %s\n", rec.Detail)
			}
			fmt.Printf("updated:   %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	return cmd
}
