// Package server implements the HTTP transport of the AI gateway: the chatbot
// query and context-button endpoints, the document ingestion trigger, and the
// health, readiness, and metrics endpoints. The server is started by the
// `aigw serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentops/ai-gateway/internal/buttons"
	"github.com/talentops/ai-gateway/internal/engine"
	"github.com/talentops/ai-gateway/internal/ingestion"
	"github.com/talentops/ai-gateway/internal/logging"
	"github.com/talentops/ai-gateway/internal/rag"
)

// New constructs a Server from the engine, ingestion pool, vector store, and
// config. The store is only used for health reporting; query traffic reaches
// it through the engine.
func New(eng querier, pool submitter, store rag.VectorStore, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Generation calls dominate response time.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.APIKey == "" {
		log.Warn("AIGW_API_KEY not set, API authentication is disabled")
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		engine:  eng,
		ingest:  pool,
		store:   store,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/chatbot/query",
		authMiddleware(cfg.APIKey, rl.middleware(s.instrument("query", s.handleQuery))))
	mux.Handle("POST /api/chatbot/context-buttons",
		authMiddleware(cfg.APIKey, rl.middleware(s.instrument("buttons", s.handleButtons))))
	mux.Handle("POST /api/ingest/document",
		authMiddleware(cfg.APIKey, rl.middleware(s.instrument("ingest", s.handleIngest))))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		defer s.stopRL()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/chatbot/query. Out-of-scope answers are
// normal 200 results; infrastructure failures map to 503 so callers can
// distinguish an outage from a legitimate no-answer.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Context.Role == "" {
		writeError(w, http.StatusBadRequest, "context.role is required")
		return
	}

	in := engine.Input{
		Query:  req.Query,
		Role:   req.Context.Role,
		Module: req.Context.Module,
	}
	if req.TaggedDoc != nil {
		in.TaggedDocumentID = req.TaggedDoc.DocumentID
	}

	start := time.Now()
	answer, err := s.engine.Query(r.Context(), in)
	outcome := queryOutcome(answer, err)
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		log := logging.FromContext(r.Context())
		log.Error("query failed", slog.Any("error", err))
		if isUpstreamUnavailable(err) {
			writeError(w, http.StatusServiceUnavailable, "upstream service unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleButtons handles POST /api/chatbot/context-buttons.
func (s *Server) handleButtons(w http.ResponseWriter, r *http.Request) {
	var ctx queryContext
	if err := json.NewDecoder(r.Body).Decode(&ctx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ctx.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}
	writeJSON(w, http.StatusOK, buttons.Generate(ctx.Role, ctx.Module))
}

// handleIngest handles POST /api/ingest/document. The document is queued for
// background processing and the request acknowledged immediately; the ledger
// carries the eventual outcome.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.FileURL == "" && req.Text == "" {
		writeError(w, http.StatusBadRequest, "one of file_url or text is required")
		return
	}

	err := s.ingest.Submit(ingestion.Request{
		DocumentID:     req.DocumentID,
		FileURL:        req.FileURL,
		Text:           req.Text,
		DocumentType:   req.DocumentType,
		Department:     req.Department,
		RoleVisibility: req.RoleVisibility,
		Version:        req.Version,
		Title:          req.Title,
	})
	if err != nil {
		s.metrics.ingestSubmittedTotal.WithLabelValues("rejected").Inc()
		logging.FromContext(r.Context()).Warn("ingestion submit rejected",
			slog.String("document_id", req.DocumentID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusServiceUnavailable, "ingestion queue full, retry later")
		return
	}
	s.metrics.ingestSubmittedTotal.WithLabelValues("accepted").Inc()

	writeJSON(w, http.StatusAccepted, ingestResponse{
		Status:     "processing",
		DocumentID: req.DocumentID,
		Message:    "document ingestion started in background",
	})
}

// handleHealth handles GET /api/health. It reports liveness plus the live
// chunk count; an unreachable index degrades the report to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", VectorDB: "connected"}

	if s.store != nil {
		count, err := s.store.Count(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Warn("health: index unreachable", slog.Any("error", err))
			resp.Status = "unhealthy"
			resp.VectorDB = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.DocumentCount = count
	}

	writeJSON(w, http.StatusOK, resp)
}

// queryOutcome classifies a finished query for metrics.
func queryOutcome(answer engine.Answer, err error) string {
	switch {
	case err != nil:
		return "error"
	case answer.OutOfScope:
		return "out_of_scope"
	default:
		return "answered"
	}
}

// isUpstreamUnavailable reports whether err is an infrastructure failure of
// one of the gateway's dependencies.
func isUpstreamUnavailable(err error) bool {
	return errors.Is(err, rag.ErrEmbeddingUnavailable) ||
		errors.Is(err, rag.ErrIndexUnavailable) ||
		errors.Is(err, rag.ErrGenerationUnavailable)
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
