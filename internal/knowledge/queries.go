package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Queries is the pgx-backed Querier implementation.
//
// All SQL is fully parameterized, including filter keys: metadata keys
// and values travel as query arguments, never as interpolated text.
// The pool must have pgvector types registered (see app setup).
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries creates a Queries over the given pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

var _ Querier = (*Queries)(nil)

// UpsertDocument implements Querier. Id collisions overwrite content,
// embedding, and metadata; created_at keeps its original value.
func (q *Queries) UpsertDocument(ctx context.Context, id, content string, embedding pgvector.Vector, metadata []byte, createdAt time.Time) error {
	const sql = `
		INSERT INTO documents (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content   = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata  = EXCLUDED.metadata`

	if _, err := q.pool.Exec(ctx, sql, id, content, embedding, metadata, createdAt); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// SearchDocuments implements Querier using the pgvector cosine
// distance operator.
func (q *Queries) SearchDocuments(ctx context.Context, embedding pgvector.Vector, filter Filter, limit int) ([]Row, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, content, metadata, created_at, embedding <=> $1 AS distance
		FROM documents`)

	args := []any{embedding}
	where := filterClauses(filter, &args)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY distance ASC LIMIT $%d", len(args))

	rows, err := q.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

// CountDocuments implements Querier.
func (q *Queries) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM documents")

	var args []any
	where := filterClauses(filter, &args)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	var count int64
	if err := q.pool.QueryRow(ctx, sb.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// DeleteDocument implements Querier.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	if _, err := q.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// filterClauses renders the filter as WHERE fragments, appending
// arguments to args. Keys are sorted so the generated SQL is stable
// for a given filter, which keeps prepared-statement caching
// effective.
func filterClauses(filter Filter, args *[]any) []string {
	var clauses []string

	if len(filter.Equals) > 0 {
		// One containment check covers all equality pairs.
		equalsJSON, err := json.Marshal(filter.Equals)
		if err == nil {
			*args = append(*args, equalsJSON)
			clauses = append(clauses, fmt.Sprintf("metadata @> $%d::jsonb", len(*args)))
		}
	}

	if len(filter.AnyOf) > 0 {
		keys := make([]string, 0, len(filter.AnyOf))
		for k := range filter.AnyOf {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			*args = append(*args, k)
			keyArg := len(*args)
			*args = append(*args, filter.AnyOf[k])
			clauses = append(clauses, fmt.Sprintf("metadata->>$%d = ANY($%d::text[])", keyArg, len(*args)))
		}
	}

	return clauses
}
