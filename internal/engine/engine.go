// Package engine implements the retrieval and grounding pipeline: it scopes a
// query to the caller's role and page module, retrieves the most similar
// chunks from the vector index, decides whether the evidence is sufficient,
// and, when it is, asks the language model for an answer constrained to the
// retrieved documents.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/talentops/ai-gateway/internal/budget"
	"github.com/talentops/ai-gateway/internal/logging"
	"github.com/talentops/ai-gateway/internal/rag"
)

// OutOfScopeMessage is the fixed refusal answer returned when retrieval finds
// no sufficiently relevant chunk. The grounding prompt instructs the model to
// emit the same sentence verbatim when the supplied documents do not contain
// the answer.
const OutOfScopeMessage = "Out of scope: This information is not present in the provided documents."

// systemPrompt constrains generation to the retrieved documents.
const systemPrompt = `You are a Talent Ops assistant. Answer ONLY using the provided documents.

CRITICAL RULES:
1. Base your answer ONLY on the provided documents
2. If information is not in documents, respond: "` + OutOfScopeMessage + `"
3. Cite specific sections when answering
4. Do not use external knowledge
5. Be concise and factual`

// Mode selects how the assembled prompt is dispatched to the model.
type Mode string

const (
	// ModeChat sends a system message with the grounding rules and a user
	// message with documents and question.
	ModeChat Mode = "chat"
	// ModeCompletion folds everything into a single user message, for
	// backends tuned for plain completion-style prompting.
	ModeCompletion Mode = "completion"
)

const (
	defaultTopK      = 5
	defaultThreshold = 0.35
)

// Generator is the slice of the chat model the engine needs. Satisfied by
// eino's ToolCallingChatModel.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Input is one query with its originating context.
type Input struct {
	// Query is the user's question text.
	Query string
	// Role is the caller's role tag, trusted as-is.
	Role string
	// Module is the page or feature the query originated from.
	Module string
	// TaggedDocumentID pins retrieval to a single document when non-empty.
	TaggedDocumentID string
}

// Source is one cited chunk backing an answer.
type Source struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Title        string  `json:"title,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
	Score        float32 `json:"score"`
}

// Answer is the result of a query. OutOfScope marks the fixed refusal; it is
// a normal result, not an error.
type Answer struct {
	Text       string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Model      string   `json:"model"`
	OutOfScope bool     `json:"out_of_scope"`
}

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	// Embedder converts the query text to a vector.
	Embedder rag.Embedder
	// Store performs the filtered similarity search.
	Store rag.VectorStore
	// Model generates the answer from the grounded prompt.
	Model Generator
	// ModelName is reported in every Answer so callers can attribute output.
	ModelName string
	// TopK is the number of chunks to retrieve (0 = 5).
	TopK int
	// Threshold is the minimum best similarity score required before the
	// model is invoked (0 = 0.35, negative disables the score gate; empty
	// retrieval is always out-of-scope).
	Threshold float32
	// Mode selects chat or completion prompting ("" = chat).
	Mode Mode
	// MaxContextTokens bounds the estimated prompt size (0 = budget default).
	MaxContextTokens int
}

// Engine answers role- and module-scoped queries against the vector index.
// Safe for concurrent use; all state is set at construction.
type Engine struct {
	embedder         rag.Embedder
	store            rag.VectorStore
	model            Generator
	modelName        string
	topK             int
	threshold        float32
	mode             Mode
	maxContextTokens int
}

// New constructs an Engine from cfg, applying defaults for unset knobs.
func New(cfg *Config) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("engine: embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("engine: model must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeChat
	}
	if mode != ModeChat && mode != ModeCompletion {
		return nil, fmt.Errorf("engine: unknown mode %q", mode)
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Engine{
		embedder:         cfg.Embedder,
		store:            cfg.Store,
		model:            cfg.Model,
		modelName:        cfg.ModelName,
		topK:             topK,
		threshold:        threshold,
		mode:             mode,
		maxContextTokens: maxCtx,
	}, nil
}

// Query retrieves evidence for in.Query and generates a grounded answer.
// Empty retrieval, or a best score below the threshold, short-circuits to the
// fixed out-of-scope answer without calling the model. Embedding, index, and
// generation failures are returned as their sentinel errors and are never
// converted to an out-of-scope result.
func (e *Engine) Query(ctx context.Context, in Input) (Answer, error) {
	log := logging.FromContext(ctx)

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return Answer{}, fmt.Errorf("engine: query must not be empty")
	}

	var filter rag.Filter
	if in.TaggedDocumentID != "" {
		// An explicit pin overrides role and module scoping.
		filter = rag.ForDocument(in.TaggedDocumentID)
	} else {
		filter = rag.ForScope(in.Role, departmentFor(in.Module))
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: embed query: %w", err)
	}

	chunks, err := e.store.Query(ctx, vector, filter, e.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: retrieve: %w", err)
	}

	if len(chunks) == 0 || (e.threshold > 0 && chunks[0].Score < e.threshold) {
		best := float32(0)
		if len(chunks) > 0 {
			best = chunks[0].Score
		}
		log.Info("query below sufficiency threshold, returning out-of-scope",
			slog.String("role", in.Role),
			slog.String("module", in.Module),
			slog.Int("retrieved", len(chunks)),
			slog.Any("best_score", best),
		)
		return Answer{Text: OutOfScopeMessage, Model: e.modelName, OutOfScope: true}, nil
	}

	reserved := budget.Estimate(systemPrompt) + budget.Estimate(query) + 64
	kept := budget.TrimChunks(chunks, reserved, e.maxContextTokens)
	if dropped := len(chunks) - len(kept); dropped > 0 {
		log.Warn("dropped retrieved chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", e.maxContextTokens),
		)
	}
	chunks = kept

	messages := e.buildMessages(query, chunks)
	log.Debug("prompt assembled",
		slog.Int("chunks", len(chunks)),
		slog.Int("estimated_tokens", budget.EstimateMessages(messages)),
	)
	resp, err := e.model.Generate(ctx, messages)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: generate: %w (%w)", err, rag.ErrGenerationUnavailable)
	}

	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, Source{
			ChunkID:      c.ID,
			DocumentID:   c.Meta.DocumentID,
			Title:        c.Meta.Title,
			SectionTitle: c.SectionTitle,
			Score:        c.Score,
		})
	}

	return Answer{
		Text:    strings.TrimSpace(resp.Content),
		Sources: sources,
		Model:   e.modelName,
	}, nil
}

// buildMessages assembles the grounded prompt. Chunks arrive in descending
// similarity order and are rendered in that order.
func (e *Engine) buildMessages(query string, chunks []rag.ScoredChunk) []*schema.Message {
	var docs strings.Builder
	for i, c := range chunks {
		if i > 0 {
			docs.WriteString("\n\n---\n\n")
		}
		label := c.Meta.Title
		if c.SectionTitle != "" {
			label = label + " / " + c.SectionTitle
		}
		fmt.Fprintf(&docs, "### Source %d: %s\n%s", i+1, label, c.Content)
	}

	body := fmt.Sprintf("Documents:\n\n%s\n\nQuestion: %s\n\nAnswer:", docs.String(), query)

	if e.mode == ModeCompletion {
		return []*schema.Message{
			schema.UserMessage(systemPrompt + "\n\n" + body),
		}
	}
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(body),
	}
}
