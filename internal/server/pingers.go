package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/talentops/ai-gateway/internal/engine"
	"github.com/talentops/ai-gateway/internal/rag"
)

// StorePinger probes the vector index through its native health check.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	store rag.VectorStore
}

// NewStorePinger constructs a StorePinger for the given vector store.
func NewStorePinger(store rag.VectorStore) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "qdrant" }

// Ping delegates to the store's health check.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a one-word query.
// Cheap for local backends; for hosted ones it consumes a negligible amount
// of tokens.
type EmbedderPinger struct {
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(embedder rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: embedder}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a minimal probe text and checks a vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vec, err := p.embedder.EmbedQuery(ctx, "ping")
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("embed probe returned an empty vector")
	}
	return nil
}

// LLMPinger probes the generation backend with a minimal generate request.
// This consumes a handful of tokens per probe, so /api/ready should not be
// polled aggressively when the backend is metered.
type LLMPinger struct {
	model engine.Generator
	name  string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m engine.Generator, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a single-word generate request and checks a response comes back.
func (p *LLMPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
