package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/faithh/faithh/internal/session"
)

type sessionHandler struct {
	sessions SessionReader
	logger   *slog.Logger
}

func (h *sessionHandler) create(w http.ResponseWriter, _ *http.Request) {
	id := h.sessions.GetOrCreate("")
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.logger.Error("session lookup failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
