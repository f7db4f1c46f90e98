package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talentops/ai-gateway/internal/ingestion"
	"github.com/talentops/ai-gateway/internal/ledger"
	"github.com/talentops/ai-gateway/internal/logging"
)

// NewIngestCmd constructs the `aigw ingest` command, which chunks, embeds,
// and indexes one document synchronously from the command line.
func NewIngestCmd() *cobra.Command {
	var docID string
	var fileURL string
	var filePath string
	var docType string
	var department string
	var roles []string
	var docVersion string
	var title string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a document into the vector store",
		Long: `Chunk, embed, and index one document into the Qdrant vector store.

The document content comes from --url (downloaded) or --file (read from disk).
Re-ingesting an existing document id replaces its chunks atomically from the
reader's perspective: a failure before the index swap leaves the previous
version intact.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: talentops-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_*          Embedding backend overrides (see README)

Examples:
  aigw ingest --id hr-leave-policy --url https://files.internal/leave-policy.md \
    --type policy --department hr --roles all --title "Leave Policy"
  aigw ingest --id fin-expenses --file ./expenses.md --department finance --roles manager,finance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if docID == "" {
				return fmt.Errorf("ingest: --id is required")
			}
			if fileURL == "" && filePath == "" {
				return fmt.Errorf("ingest: one of --url or --file is required")
			}

			var text string
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return fmt.Errorf("ingest: failed to read %s: %w", filePath, err)
				}
				text = string(data)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			var recorder ingestion.Recorder
			if dbPath := os.Getenv("LEDGER_DB"); dbPath != "disabled" {
				if dbPath == "" {
					dbPath, _ = ledger.DefaultDBPath()
				}
				if dbPath != "" {
					if led, ledErr := ledger.Open(dbPath); ledErr == nil {
						recorder = led
						defer func() { _ = led.Close() }()
					} else {
						log.Warn("ledger: failed to open, continuing without", slog.Any("error", ledErr))
					}
				}
			}

			pipeline, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
				ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
				Recorder:     recorder,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			count, err := pipeline.Ingest(ctx, ingestion.Request{
				DocumentID:     docID,
				FileURL:        fileURL,
				Text:           text,
				DocumentType:   docType,
				Department:     department,
				RoleVisibility: roles,
				Version:        docVersion,
				Title:          title,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("document indexed",
				slog.String("document_id", docID),
				slog.Int("chunks", count),
			)
			fmt.Printf("indexed %s (%d chunks)\n", docID, count)
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "id", "", "Stable document identifier (required)")
	cmd.Flags().StringVarP(&fileURL, "url", "u", "", "URL to download the document from")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Local file to read the document from")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type label (policy, guide, compliance)")
	cmd.Flags().StringVarP(&department, "department", "d", "", "Owning department (hr, finance, engineering, legal)")
	cmd.Flags().StringSliceVarP(&roles, "roles", "r", nil, "Roles allowed to retrieve the document (default: all)")
	cmd.Flags().StringVar(&docVersion, "doc-version", "", "Document version label")
	cmd.Flags().StringVar(&title, "title", "", "Human-readable document title")

	return cmd
}
