// Package knowledge provides the vector index over PostgreSQL + pgvector.
//
// Documents are embedded on insert and searched by cosine distance.
// Every search result carries its distance so callers can apply their
// own relevance thresholds; the store itself never filters by distance.
//
// The [Store] depends on a consumer-defined [Querier] interface rather
// than a concrete database handle, so unit tests run against a mock
// while production wires the pgx implementation from [NewQueries].
//
// Failure mode: any database or embedder failure surfaces as an error
// wrapping [ErrIndexUnavailable]. Callers in the retrieval path treat
// that as "no results" rather than failing the request.
package knowledge
