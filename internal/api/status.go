package api

import (
	"context"
	"net/http"
	"time"
)

// statusPingTimeout bounds the index health probe.
const statusPingTimeout = 5 * time.Second

type statusHandler struct {
	sessions  SessionReader
	index     IndexPinger
	providers []string
	version   string
}

type statusResponse struct {
	Status         string   `json:"status"`
	Version        string   `json:"version,omitempty"`
	Providers      []string `json:"providers"`
	IndexAvailable bool     `json:"index_available"`
	ActiveSessions int      `json:"active_sessions"`
}

func (h *statusHandler) get(w http.ResponseWriter, r *http.Request) {
	indexUp := false
	if h.index != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statusPingTimeout)
		indexUp = h.index.Ping(ctx) == nil
		cancel()
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "ok",
		Version:        h.version,
		Providers:      h.providers,
		IndexAvailable: indexUp,
		ActiveSessions: h.sessions.Len(),
	})
}
