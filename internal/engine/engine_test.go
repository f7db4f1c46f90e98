package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/talentops/ai-gateway/internal/rag"
)

// stubEmbedder returns a fixed query vector, or err when set.
type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, s.err
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

// stubStore records the filter it was queried with and returns canned results.
type stubStore struct {
	results    []rag.ScoredChunk
	err        error
	lastFilter rag.Filter
	lastTopK   int
}

func (s *stubStore) Upsert(context.Context, []rag.Chunk, [][]float32) error { return nil }

func (s *stubStore) Query(_ context.Context, _ []float32, filter rag.Filter, topK int) ([]rag.ScoredChunk, error) {
	s.lastFilter = filter
	s.lastTopK = topK
	return s.results, s.err
}

func (s *stubStore) DeleteWhere(context.Context, rag.Filter) error { return nil }
func (s *stubStore) Count(context.Context) (uint64, error)         { return 0, nil }
func (s *stubStore) Ping(context.Context) error                    { return nil }
func (s *stubStore) Close() error                                  { return nil }

// stubGenerator echoes the retrieved document body, or fails when err is set.
// When forbidden is set, any call fails the test: the sufficiency gate must
// not reach the model.
type stubGenerator struct {
	t         *testing.T
	forbidden bool
	err       error
	calls     int
	lastInput []*schema.Message
}

func (s *stubGenerator) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if s.forbidden {
		s.t.Fatal("generation service called for an out-of-scope query")
	}
	s.calls++
	s.lastInput = input
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage("  The refund window is 30 days.  ", nil), nil
}

func chunkFor(docID, content string, score float32) rag.ScoredChunk {
	return rag.ScoredChunk{
		Chunk: rag.Chunk{
			ID:      docID + "#0000",
			Content: content,
			Meta: rag.DocumentMeta{
				DocumentID:     docID,
				DocumentType:   "policy",
				Department:     "finance",
				RoleVisibility: []string{"all"},
				Title:          "Refund Policy",
			},
		},
		Score: score,
	}
}

func newTestEngine(t *testing.T, store *stubStore, gen *stubGenerator) *Engine {
	t.Helper()
	e, err := New(&Config{
		Embedder:  &stubEmbedder{},
		Store:     store,
		Model:     gen,
		ModelName: "llama3.1:8b",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func Test_Query_AnsweredWithSources(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "The refund window is 30 days.", 0.91),
	}}
	gen := &stubGenerator{t: t}
	e := newTestEngine(t, store, gen)

	ans, err := e.Query(context.Background(), Input{Query: "How long is the refund window?", Role: "employee"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.OutOfScope {
		t.Error("answer unexpectedly out of scope")
	}
	if ans.Text != "The refund window is 30 days." {
		t.Errorf("answer text = %q", ans.Text)
	}
	if ans.Model != "llama3.1:8b" {
		t.Errorf("model = %q", ans.Model)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].DocumentID != "doc1" {
		t.Fatalf("sources = %+v, want one citation of doc1", ans.Sources)
	}
	if ans.Sources[0].Score != 0.91 {
		t.Errorf("source score = %v, want 0.91", ans.Sources[0].Score)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func Test_Query_EmptyRetrievalSkipsGeneration(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	gen := &stubGenerator{t: t, forbidden: true}
	e := newTestEngine(t, store, gen)

	ans, err := e.Query(context.Background(), Input{Query: "anything", Role: "employee"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ans.OutOfScope {
		t.Error("want out-of-scope answer")
	}
	if ans.Text != OutOfScopeMessage {
		t.Errorf("text = %q, want the fixed out-of-scope sentence", ans.Text)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("out-of-scope answer must cite nothing, got %d sources", len(ans.Sources))
	}
}

func Test_Query_BelowThresholdSkipsGeneration(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "vaguely related text", 0.12),
	}}
	gen := &stubGenerator{t: t, forbidden: true}
	e := newTestEngine(t, store, gen)

	ans, err := e.Query(context.Background(), Input{Query: "anything", Role: "employee"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ans.OutOfScope {
		t.Error("want out-of-scope answer for sub-threshold retrieval")
	}
}

func Test_Query_NegativeThresholdDisablesScoreGate(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "The refund window is 30 days.", 0.05),
	}}
	gen := &stubGenerator{t: t}
	e, err := New(&Config{
		Embedder:  &stubEmbedder{},
		Store:     store,
		Model:     gen,
		Threshold: -1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := e.Query(context.Background(), Input{Query: "q", Role: "employee"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.OutOfScope {
		t.Error("disabled score gate must not reject low-scoring retrieval")
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func Test_Query_NegativeThresholdStillGatesEmptyRetrieval(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	gen := &stubGenerator{t: t, forbidden: true}
	e, err := New(&Config{
		Embedder:  &stubEmbedder{},
		Store:     store,
		Model:     gen,
		Threshold: -1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := e.Query(context.Background(), Input{Query: "q", Role: "employee"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ans.OutOfScope {
		t.Error("empty retrieval must stay out-of-scope even with the gate disabled")
	}
}

func Test_Query_TaggedDocumentOverridesScoping(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc9", "pinned content", 0.8),
	}}
	gen := &stubGenerator{t: t}
	e := newTestEngine(t, store, gen)

	_, err := e.Query(context.Background(), Input{
		Query:            "what does this say?",
		Role:             "employee",
		Module:           "payroll",
		TaggedDocumentID: "doc9",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := rag.Filter{DocumentID: "doc9"}
	if store.lastFilter != want {
		t.Errorf("filter = %+v, want pin-only %+v", store.lastFilter, want)
	}
}

func Test_Query_ModuleMapsToDepartment(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "content", 0.8),
	}}
	gen := &stubGenerator{t: t}
	e := newTestEngine(t, store, gen)

	_, err := e.Query(context.Background(), Input{Query: "q", Role: "manager", Module: "payroll"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := rag.Filter{Role: "manager", Department: "finance"}
	if store.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", store.lastFilter, want)
	}
	if store.lastTopK != defaultTopK {
		t.Errorf("topK = %d, want %d", store.lastTopK, defaultTopK)
	}
}

func Test_Query_UnknownModuleHasNoDepartmentConstraint(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "content", 0.8),
	}}
	gen := &stubGenerator{t: t}
	e := newTestEngine(t, store, gen)

	_, err := e.Query(context.Background(), Input{Query: "q", Role: "employee", Module: "dashboard"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if store.lastFilter.Department != "" {
		t.Errorf("department = %q, want unscoped", store.lastFilter.Department)
	}
}

func Test_Query_PromptContainsDocumentsAndQuestion(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "The refund window is 30 days.", 0.9),
	}}
	gen := &stubGenerator{t: t}
	e := newTestEngine(t, store, gen)

	_, err := e.Query(context.Background(), Input{Query: "How long is the refund window?", Role: "employee"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(gen.lastInput) != 2 {
		t.Fatalf("chat mode must send 2 messages, got %d", len(gen.lastInput))
	}
	if gen.lastInput[0].Role != schema.System {
		t.Errorf("first message role = %v, want system", gen.lastInput[0].Role)
	}
	body := gen.lastInput[1].Content
	if !strings.Contains(body, "The refund window is 30 days.") {
		t.Error("prompt body missing retrieved chunk content")
	}
	if !strings.Contains(body, "Question: How long is the refund window?") {
		t.Error("prompt body missing the user question")
	}
	if !strings.Contains(gen.lastInput[0].Content, OutOfScopeMessage) {
		t.Error("grounding instructions must quote the fixed out-of-scope sentence")
	}
}

func Test_Query_CompletionModeSendsSingleMessage(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "content", 0.9),
	}}
	gen := &stubGenerator{t: t}
	e, err := New(&Config{
		Embedder: &stubEmbedder{},
		Store:    store,
		Model:    gen,
		Mode:     ModeCompletion,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Query(context.Background(), Input{Query: "q", Role: "employee"}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(gen.lastInput) != 1 {
		t.Fatalf("completion mode must send 1 message, got %d", len(gen.lastInput))
	}
	if gen.lastInput[0].Role != schema.User {
		t.Errorf("message role = %v, want user", gen.lastInput[0].Role)
	}
}

func Test_Query_EmbeddingFailureIsNotOutOfScope(t *testing.T) {
	t.Parallel()
	embedErr := fmt.Errorf("embedder: connection refused (%w)", rag.ErrEmbeddingUnavailable)
	store := &stubStore{}
	gen := &stubGenerator{t: t, forbidden: true}
	e, err := New(&Config{
		Embedder: &stubEmbedder{err: embedErr},
		Store:    store,
		Model:    gen,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = e.Query(context.Background(), Input{Query: "q", Role: "employee"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("want ErrEmbeddingUnavailable, got: %v", err)
	}
}

func Test_Query_GenerationFailureIsNotOutOfScope(t *testing.T) {
	t.Parallel()
	store := &stubStore{results: []rag.ScoredChunk{
		chunkFor("doc1", "content", 0.9),
	}}
	gen := &stubGenerator{t: t, err: errors.New("model timed out")}
	e := newTestEngine(t, store, gen)

	_, err := e.Query(context.Background(), Input{Query: "q", Role: "employee"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, rag.ErrGenerationUnavailable) {
		t.Errorf("want ErrGenerationUnavailable, got: %v", err)
	}
}

func Test_Query_EmptyQueryRejected(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &stubStore{}, &stubGenerator{t: t, forbidden: true})

	if _, err := e.Query(context.Background(), Input{Query: "   ", Role: "employee"}); err == nil {
		t.Fatal("expected error for blank query")
	}
}

func Test_New_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(&Config{Store: &stubStore{}, Model: &stubGenerator{t: t}}); err == nil {
		t.Error("want error for nil embedder")
	}
	if _, err := New(&Config{Embedder: &stubEmbedder{}, Model: &stubGenerator{t: t}}); err == nil {
		t.Error("want error for nil store")
	}
	if _, err := New(&Config{Embedder: &stubEmbedder{}, Store: &stubStore{}}); err == nil {
		t.Error("want error for nil model")
	}
	if _, err := New(&Config{
		Embedder: &stubEmbedder{}, Store: &stubStore{}, Model: &stubGenerator{t: t},
		Mode: "stream",
	}); err == nil {
		t.Error("want error for unknown mode")
	}
}
