package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faithh/faithh/internal/gateway"
)

// maxQueryBytes bounds the request body.
const maxQueryBytes = 1 << 20

type chatHandler struct {
	chat   Chatter
	logger *slog.Logger
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`

	// UseRAG defaults to true when absent.
	UseRAG *bool `json:"use_rag,omitempty"`
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	retrieval := true
	if req.UseRAG != nil {
		retrieval = *req.UseRAG
	}

	result, err := h.chat.Answer(r.Context(), req.Query, req.SessionID, req.Model, retrieval)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrAllProvidersExhausted):
			writeError(w, http.StatusBadGateway, "providers_exhausted", "no provider could answer")
		case r.Context().Err() != nil:
			// Client went away; status is moot but 499-ish is not standard.
			writeError(w, http.StatusBadRequest, "canceled", "request canceled")
		default:
			h.logger.Error("chat turn failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
