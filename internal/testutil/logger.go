// Package testutil provides shared testing utilities: a discard
// logger, deterministic embedder and provider mocks, and a PostgreSQL
// test container with pgvector.
package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops everything. Use it in
// tests that do not assert on log output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
