package api

import (
	"net/http"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	stats StatsProvider
}

// NewHealthHandler creates a new health handler. stats may be nil.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

type healthResponse struct {
	Status string         `json:"status"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// HandleHealth handles GET /healthz requests. The process is healthy while it
// can answer; whether a model is promoted is reported by GET /model.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.stats != nil {
		resp.Stats = h.stats.Stats(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}
