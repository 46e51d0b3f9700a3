package handlers

import (
	"net/http"

	"backdesk/pkg/api"
)

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.StatusResponse{Status: "healthy"})
}

// Readyz is a readiness probe.
// It reports whether the engine is accepting requests.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.probe.Ready(r.Context()); err != nil {
		h.httpError(w, "Engine unavailable", http.StatusServiceUnavailable)
		return
	}
	h.respondJson(w, http.StatusOK, api.StatusResponse{Status: "ready"})
}
