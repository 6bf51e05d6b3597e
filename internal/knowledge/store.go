package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// ErrIndexUnavailable marks any failure of the vector index or its
// embedder. The retrieval path matches on it with errors.Is and
// degrades to "no results".
var ErrIndexUnavailable = errors.New("vector index unavailable")

// Row is one raw search result from the database layer.
type Row struct {
	ID        string
	Content   string
	Metadata  []byte
	CreatedAt time.Time
	Distance  float32
}

// Querier defines the database operations Store needs. Interfaces are
// defined by the consumer: production wires the pgx implementation
// from NewQueries, tests wire a mock.
type Querier interface {
	// UpsertDocument inserts or overwrites a document by id.
	UpsertDocument(ctx context.Context, id, content string, embedding pgvector.Vector, metadata []byte, createdAt time.Time) error

	// SearchDocuments returns the closest documents by cosine
	// distance, ascending, honoring the filter.
	SearchDocuments(ctx context.Context, embedding pgvector.Vector, filter Filter, limit int) ([]Row, error)

	// CountDocuments counts documents matching the filter.
	CountDocuments(ctx context.Context, filter Filter) (int64, error)

	// DeleteDocument deletes a document by id.
	DeleteDocument(ctx context.Context, id string) error
}

// Store manages knowledge documents with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a Store. timeout bounds each search end to end,
// embedding included, so a slow index never stalls the request
// pipeline; zero means 5 seconds.
func New(querier Querier, embedder ai.Embedder, timeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
		timeout:  timeout,
	}
}

// Add embeds and upserts a document. Id collisions overwrite the
// previous content, which makes retried indexing writes idempotent.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("%w: embedding document %q: %v", ErrIndexUnavailable, doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if err := s.queries.UpsertDocument(ctx, doc.ID, doc.Content, embedding, metadataJSON, createdAt); err != nil {
		return fmt.Errorf("%w: upserting %q: %v", ErrIndexUnavailable, doc.ID, err)
	}

	s.logger.Debug("indexed document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search returns the closest documents to query, ordered by ascending
// cosine distance.
//
//	matches, err := store.Search(ctx, "harmonic resonance",
//	    knowledge.WithTopK(3),
//	    knowledge.WithEquals(knowledge.MetaCategory, "domain_reference"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Match, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrIndexUnavailable, err)
	}

	rows, err := s.queries.SearchDocuments(queryCtx, embedding, cfg.filter, cfg.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrIndexUnavailable, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse document metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}
		matches = append(matches, Match{
			Document: Document{
				ID:        row.ID,
				Content:   row.Content,
				Metadata:  metadata,
				CreatedAt: row.CreatedAt,
			},
			Distance: row.Distance,
		})
	}

	s.logger.Debug("vector search", "matches", len(matches), "top_k", cfg.topK,
		"filtered", !cfg.filter.Empty())
	return matches, nil
}

// Count returns the number of documents matching the filter options.
func (s *Store) Count(ctx context.Context, opts ...SearchOption) (int, error) {
	cfg := buildSearchConfig(opts)

	count, err := s.queries.CountDocuments(ctx, cfg.filter)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrIndexUnavailable, err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Ping reports whether the index answers queries. It runs an
// unfiltered count, which touches the table without the embedder.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Count(ctx)
	return err
}

// Delete removes a document by id.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("%w: deleting %q: %v", ErrIndexUnavailable, docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned no vector")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
