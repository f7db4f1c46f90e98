// Package ingestion implements the document ingestion pipeline. It fetches a
// document's raw text, chunks it, embeds each chunk, and replaces the
// document's entries in the vector index, recording the outcome in the
// ingestion ledger. Re-ingesting a document is idempotent: the same text
// produces the same chunk ids, and stale chunks from a prior version are
// removed before the new ones go live.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/talentops/ai-gateway/internal/chunker"
	"github.com/talentops/ai-gateway/internal/logging"
	"github.com/talentops/ai-gateway/internal/rag"
)

// Pipeline step names recorded in the ledger on failure.
const (
	StepFetch   = "fetch"
	StepChunk   = "chunk"
	StepEmbed   = "embed"
	StepReplace = "replace"
	StepUpsert  = "upsert"
)

// Request describes one document to ingest. Exactly one of Text or FileURL
// must be set: Text carries the content inline, FileURL points at the
// document store location to download it from.
type Request struct {
	// DocumentID identifies the document; chunks derive their ids from it.
	DocumentID string
	// Text is the document content, when supplied inline.
	Text string
	// FileURL is the location to fetch the content from, when not inline.
	FileURL string
	// DocumentType classifies the document (policy, handbook, contract, ...).
	DocumentType string
	// Department is the owning department ("general" when empty).
	Department string
	// RoleVisibility lists the roles allowed to retrieve the document's
	// chunks (["all"] when empty).
	RoleVisibility []string
	// Version is the document version label.
	Version string
	// Title is the human-readable document title.
	Title string
}

// Recorder receives ingestion lifecycle signals. Satisfied by
// ledger.SQLiteLedger. Recording failures are logged, never fatal: the index
// is the source of truth, the ledger is a consumer.
type Recorder interface {
	MarkProcessing(ctx context.Context, documentID string) error
	MarkIndexed(ctx context.Context, documentID string, chunkCount int) error
	MarkFailed(ctx context.Context, documentID, step string, cause error) error
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk (0 = chunker default).
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks (0 = chunker default).
	ChunkOverlap int
	// HTTPTimeout bounds each document download (0 = 30s).
	HTTPTimeout time.Duration
	// UserAgent is the HTTP User-Agent header sent with download requests.
	UserAgent string
	// Recorder receives lifecycle signals; may be nil.
	Recorder Recorder
}

// Pipeline orchestrates the fetch → chunk → embed → replace flow for one
// document at a time. Concurrent ingestions of distinct documents may run in
// parallel; ingestions of the same document are serialized.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder rag.Embedder
	store    rag.VectorStore
	recorder Recorder

	httpClient *http.Client
	userAgent  string

	// mu guards locks.
	mu sync.Mutex
	// locks holds one mutex per document id currently or previously in flight.
	locks map[string]*sync.Mutex
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = "ai-gateway/1.0 (document ingestion)"
	}

	return &Pipeline{
		chunker:    chunker.New(chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}),
		embedder:   embedder,
		store:      store,
		recorder:   cfg.Recorder,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  agent,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// lockDocument serializes ingestions of the same document id and returns the
// matching unlock func.
func (p *Pipeline) lockDocument(documentID string) func() {
	p.mu.Lock()
	l, ok := p.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[documentID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Ingest runs the full pipeline for one document and returns the number of
// chunks now live in the index. The document's prior chunks are removed only
// after the new chunks have been computed and embedded, so a failure in any
// earlier step leaves the index unchanged. The outcome is recorded in the
// ledger either way.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (int, error) {
	if req.DocumentID == "" {
		return 0, fmt.Errorf("ingestion: document id must not be empty")
	}
	if req.Text == "" && req.FileURL == "" {
		return 0, fmt.Errorf("ingestion: request for %s carries neither text nor file url", req.DocumentID)
	}

	unlock := p.lockDocument(req.DocumentID)
	defer unlock()

	log := logging.FromContext(ctx)
	p.record(ctx, func(r Recorder) error { return r.MarkProcessing(ctx, req.DocumentID) })

	count, step, err := p.run(ctx, req)
	if err != nil {
		log.Error("ingestion failed",
			slog.String("document_id", req.DocumentID),
			slog.String("step", step),
			slog.Any("error", err),
		)
		p.record(ctx, func(r Recorder) error { return r.MarkFailed(ctx, req.DocumentID, step, err) })
		return 0, fmt.Errorf("ingestion: %s failed for %s: %w", step, req.DocumentID, err)
	}

	log.Info("document indexed",
		slog.String("document_id", req.DocumentID),
		slog.Int("chunks", count),
	)
	p.record(ctx, func(r Recorder) error { return r.MarkIndexed(ctx, req.DocumentID, count) })
	return count, nil
}

// run executes the pipeline steps and reports which one failed.
func (p *Pipeline) run(ctx context.Context, req Request) (count int, step string, err error) {
	text := req.Text
	if text == "" {
		text, err = p.fetch(ctx, req.FileURL)
		if err != nil {
			return 0, StepFetch, err
		}
	}

	meta := rag.DocumentMeta{
		DocumentID:     req.DocumentID,
		DocumentType:   req.DocumentType,
		Department:     req.Department,
		RoleVisibility: req.RoleVisibility,
		Version:        req.Version,
		Title:          req.Title,
	}
	if meta.Department == "" {
		meta.Department = "general"
	}
	if len(meta.RoleVisibility) == 0 {
		meta.RoleVisibility = []string{"all"}
	}

	chunks, err := p.chunker.Split(text, meta)
	if err != nil {
		return 0, StepChunk, err
	}
	if len(chunks) == 0 {
		return 0, StepChunk, fmt.Errorf("document %s contains no indexable text", req.DocumentID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, StepEmbed, err
	}

	// Remove the prior version only once the replacement is fully computed.
	// Old chunk ids not reused by the new chunking must not survive.
	if err := p.store.DeleteWhere(ctx, rag.ForDocument(req.DocumentID)); err != nil {
		return 0, StepReplace, err
	}

	if err := p.store.Upsert(ctx, chunks, vectors); err != nil {
		return 0, StepUpsert, err
	}

	return len(chunks), "", nil
}

// Delete removes every chunk of the document from the index. Serialized
// against ingestions of the same document.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("ingestion: document id must not be empty")
	}
	unlock := p.lockDocument(documentID)
	defer unlock()

	if err := p.store.DeleteWhere(ctx, rag.ForDocument(documentID)); err != nil {
		return fmt.Errorf("ingestion: delete %s: %w", documentID, err)
	}
	p.record(ctx, func(r Recorder) error { return r.MarkIndexed(ctx, documentID, 0) })
	return nil
}

// record runs one recorder call when a recorder is configured, logging (not
// propagating) any error.
func (p *Pipeline) record(ctx context.Context, fn func(Recorder) error) {
	if p.recorder == nil {
		return
	}
	if err := fn(p.recorder); err != nil {
		logging.FromContext(ctx).Warn("ledger update failed", slog.Any("error", err))
	}
}

// fetch retrieves the raw text content of a document store URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}
