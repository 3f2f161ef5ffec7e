package handlers

import (
	"net/http"

	"github.com/tripdesk/syncbridge/internal/httputil"
	"github.com/tripdesk/syncbridge/internal/repository"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	repo repository.Repository
}

func NewHealthHandler(repo repository.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready fails until the store answers a ping, so load balancers hold traffic
// during startup and database outages.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
