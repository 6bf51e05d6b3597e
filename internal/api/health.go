package api

import "net/http"

// healthz is the liveness probe. It answers as long as the process
// serves HTTP; degraded dependencies are /api/v1/status's business.
func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
