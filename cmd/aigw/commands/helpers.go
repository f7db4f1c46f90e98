package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/talentops/ai-gateway/internal/embedder"
	"github.com/talentops/ai-gateway/internal/engine"
	"github.com/talentops/ai-gateway/internal/provider"
	"github.com/talentops/ai-gateway/internal/rag"
)

// buildStore connects to Qdrant using the QDRANT_* environment variables and
// the vector size implied by the configured embedding backend.
func buildStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "talentops-docs")

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return store, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder from the environment.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	return emb, nil
}

// buildChatModel constructs the chat model from the MODEL_PROVIDER
// environment. The config is returned too so callers can label the backend.
func buildChatModel(ctx context.Context, log *slog.Logger) (engine.Generator, *provider.Config, error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))
	return chatModel, providerCfg, nil
}

// buildEngine wires the chat model, embedder, and vector store into a query
// engine tuned by the RAG_* environment variables.
func buildEngine(chatModel engine.Generator, providerCfg *provider.Config, emb rag.Embedder, store rag.VectorStore) (*engine.Engine, error) {
	eng, err := engine.New(&engine.Config{
		Embedder:  emb,
		Store:     store,
		Model:     chatModel,
		ModelName: providerCfg.ModelName(),
		TopK:      getEnvInt("RAG_TOP_K", 0),
		Threshold: thresholdFromEnv(),
		Mode:      engine.Mode(os.Getenv("RAG_MODE")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, nil
}

// getEnvOrDefault returns the env var value or fallback if unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback on absence or
// parse failure.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// thresholdFromEnv maps RAG_SIMILARITY_THRESHOLD onto the engine's threshold
// knob. Unset or unparsable means 0, the engine default. An explicit value of
// zero or below disables the score gate, which the engine spells as negative.
func thresholdFromEnv() float32 {
	v := os.Getenv("RAG_SIMILARITY_THRESHOLD")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0
	}
	if f <= 0 {
		return -1
	}
	return float32(f)
}
