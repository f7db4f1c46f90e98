package rag

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names used for every point in the collection. These are the
// only metadata fields the service persists (see DocumentMeta).
const (
	fieldChunkID        = "chunk_id"
	fieldContent        = "content"
	fieldSectionTitle   = "section_title"
	fieldDocumentID     = "document_id"
	fieldDocumentType   = "document_type"
	fieldDepartment     = "department"
	fieldRoleVisibility = "role_visibility"
	fieldVersion        = "version"
	fieldTitle          = "title"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. All vectors in one collection must come from the same
	// embedding model — the store does not enforce this.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance using cosine
// similarity. Qdrant's cosine score is already 1 - distance, so scores are
// returned as-is.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores chunks with their pre-computed embeddings. Points keep their
// deterministic IDs, so re-ingesting a document overwrites its prior entries
// instead of duplicating them.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		roles := make([]any, 0, len(c.Meta.RoleVisibility))
		for _, r := range c.Meta.RoleVisibility {
			roles = append(roles, r)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(c.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldChunkID:        c.ID,
				fieldContent:        c.Content,
				fieldSectionTitle:   c.SectionTitle,
				fieldDocumentID:     c.Meta.DocumentID,
				fieldDocumentType:   c.Meta.DocumentType,
				fieldDepartment:     c.Meta.Department,
				fieldRoleVisibility: roles,
				fieldVersion:        c.Meta.Version,
				fieldTitle:          c.Meta.Title,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w (%w)", err, ErrIndexUnavailable)
	}

	return nil
}

// Query performs a cosine similarity search restricted to filter and returns
// at most topK results in descending score order.
func (s *QdrantStore) Query(ctx context.Context, queryVector []float32, filter Filter, topK int) ([]ScoredChunk, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         toQdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w (%w)", err, ErrIndexUnavailable)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, ScoredChunk{
			Chunk: chunkFromPayload(r.Payload),
			Score: r.Score,
		})
	}

	return chunks, nil
}

// DeleteWhere removes every point matching filter. A filter that matches
// nothing is a successful no-op.
func (s *QdrantStore) DeleteWhere(ctx context.Context, filter Filter) error {
	if filter.IsZero() {
		return fmt.Errorf("qdrant: refusing to delete with an empty filter")
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w (%w)", err, ErrIndexUnavailable)
	}

	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w (%w)", err, ErrIndexUnavailable)
	}
	return n, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// toQdrantFilter converts a structured Filter into a Qdrant filter. Equality
// predicates become must conditions. The role predicate is the one disjunction
// (role in role_visibility OR role_visibility contains "all"); Qdrant supports
// it natively as a nested should-filter inside the must list, so no merged
// double query is needed.
func toQdrantFilter(f Filter) *qdrant.Filter {
	if f.IsZero() {
		return nil
	}

	var must []*qdrant.Condition
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch(fieldDocumentID, f.DocumentID))
	}
	if f.DocumentType != "" {
		must = append(must, qdrant.NewMatch(fieldDocumentType, f.DocumentType))
	}
	if f.Department != "" {
		must = append(must, qdrant.NewMatch(fieldDepartment, f.Department))
	}
	if f.Role != "" {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{
					Should: []*qdrant.Condition{
						qdrant.NewMatch(fieldRoleVisibility, f.Role),
						qdrant.NewMatch(fieldRoleVisibility, "all"),
					},
				},
			},
		})
	}

	return &qdrant.Filter{Must: must}
}

// chunkFromPayload reconstructs a Chunk from a point payload.
func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	str := func(field string) string {
		if v, ok := payload[field]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	var roles []string
	if v, ok := payload[fieldRoleVisibility]; ok {
		if list := v.GetListValue(); list != nil {
			for _, item := range list.Values {
				if s := item.GetStringValue(); s != "" {
					roles = append(roles, s)
				}
			}
		}
	}

	return Chunk{
		ID:           str(fieldChunkID),
		Content:      str(fieldContent),
		SectionTitle: str(fieldSectionTitle),
		Meta: DocumentMeta{
			DocumentID:     str(fieldDocumentID),
			DocumentType:   str(fieldDocumentType),
			Department:     str(fieldDepartment),
			RoleVisibility: roles,
			Version:        str(fieldVersion),
			Title:          str(fieldTitle),
		},
	}
}

// pointUUID derives a deterministic UUID from a logical chunk ID so that
// re-ingestion maps each chunk to the same Qdrant point.
func pointUUID(chunkID string) string {
	h := sha256.Sum256([]byte(chunkID))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
