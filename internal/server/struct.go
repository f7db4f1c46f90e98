package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/talentops/ai-gateway/internal/engine"
	"github.com/talentops/ai-gateway/internal/ingestion"
	"github.com/talentops/ai-gateway/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// querier answers one scoped query. *engine.Engine satisfies it; tests
// inject a fake.
type querier interface {
	Query(ctx context.Context, in engine.Input) (engine.Answer, error)
}

// submitter queues a document for background ingestion. *ingestion.Pool
// satisfies it; tests inject a fake.
type submitter interface {
	Submit(req ingestion.Request) error
}

// Server is the HTTP transport in front of the retrieval engine and the
// ingestion pool.
type Server struct {
	// engine answers chatbot queries.
	engine querier
	// ingest queues background document ingestions.
	ingest submitter
	// store is probed for the live chunk count reported by /api/health.
	store rag.VectorStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryContext identifies where a query came from.
type queryContext struct {
	// Role is the caller's role tag (trusted input).
	Role string `json:"role"`
	// Module is the page or feature the query originated from.
	Module string `json:"module"`
}

// taggedDoc pins a query to one document.
type taggedDoc struct {
	DocumentID string `json:"document_id"`
}

// queryRequest is the JSON body for POST /api/chatbot/query.
type queryRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// Context carries role and module scoping.
	Context queryContext `json:"context"`
	// TaggedDoc optionally pins retrieval to one document.
	TaggedDoc *taggedDoc `json:"tagged_doc,omitempty"`
}

// ingestRequest is the JSON body for POST /api/ingest/document.
type ingestRequest struct {
	DocumentID     string   `json:"document_id"`
	FileURL        string   `json:"file_url,omitempty"`
	Text           string   `json:"text,omitempty"`
	DocumentType   string   `json:"document_type"`
	Department     string   `json:"department,omitempty"`
	RoleVisibility []string `json:"role_visibility,omitempty"`
	Version        string   `json:"version,omitempty"`
	Title          string   `json:"title"`
}

// ingestResponse is the immediate acknowledgement for an ingestion trigger.
type ingestResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
}

// healthResponse is the JSON body for GET /api/health.
type healthResponse struct {
	Status        string `json:"status"`
	VectorDB      string `json:"vector_db"`
	DocumentCount uint64 `json:"document_count"`
}

// errorResponse is the JSON error envelope for all handler failures.
type errorResponse struct {
	Error string `json:"error"`
}
