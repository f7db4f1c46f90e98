package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/talentops/ai-gateway/internal/engine"
	"github.com/talentops/ai-gateway/internal/ingestion"
	"github.com/talentops/ai-gateway/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeEngine implements the querier interface for handler tests.
type fakeEngine struct {
	answer    engine.Answer
	err       error
	lastInput engine.Input
}

func (f *fakeEngine) Query(_ context.Context, in engine.Input) (engine.Answer, error) {
	f.lastInput = in
	if f.err != nil {
		return engine.Answer{}, f.err
	}
	return f.answer, nil
}

// fakePool implements the submitter interface and records submissions.
type fakePool struct {
	mu        sync.Mutex
	err       error
	submitted []ingestion.Request
}

func (f *fakePool) Submit(req ingestion.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, req)
	return nil
}

// fakeCountStore is a rag.VectorStore that only supports Count, for health
// handler tests.
type fakeCountStore struct {
	count    uint64
	countErr error
}

func (s *fakeCountStore) Upsert(context.Context, []rag.Chunk, [][]float32) error { return nil }
func (s *fakeCountStore) Query(context.Context, []float32, rag.Filter, int) ([]rag.ScoredChunk, error) {
	return nil, nil
}
func (s *fakeCountStore) DeleteWhere(context.Context, rag.Filter) error { return nil }
func (s *fakeCountStore) Count(context.Context) (uint64, error)         { return s.count, s.countErr }
func (s *fakeCountStore) Ping(context.Context) error                    { return s.countErr }
func (s *fakeCountStore) Close() error                                  { return nil }

// newTestServer builds a *Server with fakes and a fresh metrics registry.
func newTestServer() *Server {
	return &Server{
		engine:  &fakeEngine{},
		ingest:  &fakePool{},
		cfg:     &Config{Port: 8080},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/chatbot/query
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{answer: engine.Answer{
		Text:    "The refund window is 30 days.",
		Model:   "llama3.1:8b",
		Sources: []engine.Source{{ChunkID: "doc1#0000", DocumentID: "doc1", Score: 0.9}},
	}}
	s := newTestServer()
	s.engine = eng

	w := postJSON(t, s.handleQuery, "/api/chatbot/query",
		`{"query":"How long is the refund window?","context":{"role":"employee","module":"payroll"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp engine.Answer
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "The refund window is 30 days." {
		t.Errorf("answer = %q", resp.Text)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentID != "doc1" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if eng.lastInput.Role != "employee" || eng.lastInput.Module != "payroll" {
		t.Errorf("engine input = %+v", eng.lastInput)
	}
}

func TestHandleQuery_TaggedDocForwarded(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{answer: engine.Answer{Text: "pinned"}}
	s := newTestServer()
	s.engine = eng

	w := postJSON(t, s.handleQuery, "/api/chatbot/query",
		`{"query":"summarize","context":{"role":"employee"},"tagged_doc":{"document_id":"doc42"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if eng.lastInput.TaggedDocumentID != "doc42" {
		t.Errorf("tagged doc = %q, want doc42", eng.lastInput.TaggedDocumentID)
	}
}

func TestHandleQuery_OutOfScopeIs200(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{answer: engine.Answer{
		Text:       engine.OutOfScopeMessage,
		OutOfScope: true,
	}}

	w := postJSON(t, s.handleQuery, "/api/chatbot/query",
		`{"query":"what is the meaning of life?","context":{"role":"employee"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("out-of-scope is a normal result, expected 200, got %d", w.Code)
	}
	var resp engine.Answer
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OutOfScope || resp.Text != engine.OutOfScopeMessage {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleQuery_UpstreamFailureIs503(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{err: fmt.Errorf("engine: generate: boom (%w)", rag.ErrGenerationUnavailable)}

	w := postJSON(t, s.handleQuery, "/api/chatbot/query",
		`{"query":"q","context":{"role":"employee"}}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for upstream outage, got %d", w.Code)
	}
}

func TestHandleQuery_Validation(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `not-json`},
		{"missing query", `{"context":{"role":"employee"}}`},
		{"missing role", `{"query":"q","context":{"module":"payroll"}}`},
	}
	for _, tc := range cases {
		w := postJSON(t, s.handleQuery, "/api/chatbot/query", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// POST /api/chatbot/context-buttons
// ---------------------------------------------------------------------------

func TestHandleButtons_ReturnsButtons(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := postJSON(t, s.handleButtons, "/api/chatbot/context-buttons",
		`{"role":"employee","module":"payroll"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Query string `json:"query"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) == 0 || len(got) > 4 {
		t.Fatalf("got %d buttons, want 1..4", len(got))
	}
}

func TestHandleButtons_MissingRole(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := postJSON(t, s.handleButtons, "/api/chatbot/context-buttons", `{"module":"payroll"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/ingest/document
// ---------------------------------------------------------------------------

func TestHandleIngest_AcceptedAndQueued(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	s := newTestServer()
	s.ingest = pool

	w := postJSON(t, s.handleIngest, "/api/ingest/document",
		`{"document_id":"doc1","file_url":"https://files.example/doc1.md","document_type":"policy","department":"finance","role_visibility":["all"],"title":"Refund Policy"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp ingestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "processing" || resp.DocumentID != "doc1" {
		t.Errorf("ack = %+v", resp)
	}

	if len(pool.submitted) != 1 {
		t.Fatalf("want 1 queued request, got %d", len(pool.submitted))
	}
	q := pool.submitted[0]
	if q.DocumentID != "doc1" || q.Department != "finance" || q.Title != "Refund Policy" {
		t.Errorf("queued request = %+v", q)
	}
}

func TestHandleIngest_QueueFullIs503(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.ingest = &fakePool{err: fmt.Errorf("ingestion: queue full, retry later")}

	w := postJSON(t, s.handleIngest, "/api/ingest/document",
		`{"document_id":"doc1","text":"inline"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHandleIngest_Validation(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{{`},
		{"missing document_id", `{"file_url":"https://x/y"}`},
		{"missing content source", `{"document_id":"doc1"}`},
	}
	for _, tc := range cases {
		w := postJSON(t, s.handleIngest, "/api/ingest/document", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestHandleQuery_OutcomeMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := newTestServer()
	s.metrics = newServerMetrics(reg)
	s.engine = &fakeEngine{answer: engine.Answer{Text: "ok"}}

	postJSON(t, s.handleQuery, "/api/chatbot/query",
		`{"query":"q","context":{"role":"employee"}}`)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "aigw_query_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == "answered" {
					if m.GetCounter().GetValue() != 1 {
						t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
					}
					found = true
				}
			}
		}
	}
	if !found {
		t.Error(`aigw_query_requests_total{outcome="answered"} not found in gathered metrics`)
	}
}
