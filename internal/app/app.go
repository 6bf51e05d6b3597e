// Package app wires the backend together: Genkit and its provider
// plugins, the Postgres pool, the stores, the gateway, and the HTTP
// server. Postgres being down is not fatal; the app starts degraded
// with the vector index disabled and every other capability intact.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faithh/faithh/internal/api"
	"github.com/faithh/faithh/internal/chat"
	"github.com/faithh/faithh/internal/config"
	"github.com/faithh/faithh/internal/gateway"
	"github.com/faithh/faithh/internal/knowledge"
	"github.com/faithh/faithh/internal/memory"
	"github.com/faithh/faithh/internal/session"
)

// App holds every initialized component. Build one with Setup and
// release it with Close.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool // nil in degraded mode
	Memory   *memory.Store
	Sessions *session.Store
	Index    *knowledge.Store // nil in degraded mode
	Gateway  *gateway.Gateway

	Orchestrator *chat.Orchestrator
	Indexer      *chat.Indexer // nil in degraded mode
	Server       *api.Server
}

// Degraded reports whether the app runs without the vector index.
func (a *App) Degraded() bool {
	return a.Index == nil
}

// Close releases resources in reverse initialization order. The
// indexer is drained before the pool goes away so queued conversation
// writes still land.
func (a *App) Close() {
	if a.Indexer != nil {
		a.Indexer.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
