package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talentops/ai-gateway/internal/engine"
	"github.com/talentops/ai-gateway/internal/logging"
)

// NewAskCmd constructs the `aigw ask` command, which answers a single
// question from the indexed documents and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var role string
	var module string
	var docID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Long: `Ask a single question and print the grounded answer with its sources.

The answer is produced strictly from indexed document content visible to the
given role. Questions the documents cannot answer return the fixed
out-of-scope response.

Examples:
  aigw ask "how many vacation days do I get?"
  aigw ask --role manager --module leave "who approves leave for contractors?"
  aigw ask --doc hr-leave-policy "summarize this document"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer store.Close()

			chatModel, providerCfg, err := buildChatModel(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			eng, err := buildEngine(chatModel, providerCfg, emb, store)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer, err := eng.Query(ctx, engine.Input{
				Query:            args[0],
				Role:             role,
				Module:           module,
				TaggedDocumentID: docID,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(answer.Text)
			if len(answer.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range answer.Sources {
					label := src.Title
					if label == "" {
						label = src.DocumentID
					}
					if src.SectionTitle != "" {
						label += " > " + src.SectionTitle
					}
					fmt.Printf("  - %s (score %.2f)\n", label, src.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "employee", "Caller role used for visibility filtering")
	cmd.Flags().StringVarP(&module, "module", "m", "", "Module the question originates from (payroll, leave, ...)")
	cmd.Flags().StringVar(&docID, "doc", "", "Pin retrieval to one document id")

	return cmd
}
