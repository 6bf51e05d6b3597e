package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faithh/faithh/internal/chat"
	"github.com/faithh/faithh/internal/session"
)

// Chatter answers one chat turn, satisfied by chat.Orchestrator.
type Chatter interface {
	Answer(ctx context.Context, query, sessionID, modelPreference string, retrievalEnabled bool) (*chat.Result, error)
}

// SessionReader is the session surface the API exposes.
type SessionReader interface {
	GetOrCreate(id string) string
	Get(id string) (*session.Session, error)
	Delete(id string) bool
	Len() int
}

// IndexPinger reports whether the vector index answers. Nil means the
// index was never configured and status reports it unavailable.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Logger    *slog.Logger
	Chat      Chatter       // required
	Sessions  SessionReader // required
	Providers []string      // provider names in failover order, for /status
	Index     IndexPinger   // optional
	Version   string
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat orchestrator is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{chat: cfg.Chat, logger: logger}
	sh := &sessionHandler{sessions: cfg.Sessions, logger: logger}
	st := &statusHandler{
		sessions:  cfg.Sessions,
		index:     cfg.Index,
		providers: cfg.Providers,
		version:   cfg.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)
	mux.HandleFunc("GET /api/v1/status", st.get)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", healthz)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
