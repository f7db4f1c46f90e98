package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/talentops/ai-gateway/internal/ingestion"
	"github.com/talentops/ai-gateway/internal/ledger"
	"github.com/talentops/ai-gateway/internal/logging"
	"github.com/talentops/ai-gateway/internal/server"
	"github.com/talentops/ai-gateway/internal/tracing"
)

// NewServeCmd constructs the `aigw serve` command, which starts the HTTP
// gateway: chatbot query, context buttons, document ingestion, health,
// readiness, and metrics endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AI gateway HTTP server",
		Long: `Start the AI gateway HTTP server on localhost.

The server answers role- and module-scoped questions from indexed documents,
queues documents for background ingestion, and exposes health, readiness,
and Prometheus metrics endpoints.

Examples:
  aigw serve
  aigw serve --port 9090
  MODEL_PROVIDER=azure aigw serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer store.Close()

			chatModel, providerCfg, err := buildChatModel(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			eng, err := buildEngine(chatModel, providerCfg, emb, store)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Open the ingestion ledger. LEDGER_DB overrides the default path
			// (~/.aigw/ledger.db). Set to "disabled" to disable.
			var recorder ingestion.Recorder
			dbPath := os.Getenv("LEDGER_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = ledger.DefaultDBPath()
					if err != nil {
						log.Warn("ledger: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					led, ledErr := ledger.Open(dbPath)
					if ledErr != nil {
						log.Warn("ledger: failed to open, disabling", slog.Any("error", ledErr))
					} else {
						recorder = led
						defer func() { _ = led.Close() }()
						log.Info("ledger: opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("ledger: disabled via LEDGER_DB=disabled")
			}

			pipeline, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
				ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
				Recorder:     recorder,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create pipeline: %w", err)
			}

			pool := ingestion.NewPool(ctx, pipeline, getEnvInt("INGEST_WORKERS", 0))
			defer pool.Close()

			pingers := []server.Pinger{
				server.NewStorePinger(store),
				server.NewEmbedderPinger(emb),
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
			}

			srv, err := server.New(eng, pool, store, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("AIGW_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
