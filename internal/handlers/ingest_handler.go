package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tripdesk/syncbridge/internal/httputil"
	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/ratelimit"
	"github.com/tripdesk/syncbridge/internal/service"
)

// IngestHandler terminates provider webhooks.
type IngestHandler struct {
	service      *service.IngestService
	limiter      ratelimit.RateLimiter
	maxBodyBytes int64
}

func NewIngestHandler(svc *service.IngestService, limiter ratelimit.RateLimiter, maxBodyBytes int64) *IngestHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &IngestHandler{
		service:      svc,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
	}
}

// HandleIngest accepts POST /ingest?provider=...; the body is a single
// provider payload or an array of them.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	provider := r.URL.Query().Get("provider")
	if provider == "" {
		httputil.WriteError(w, http.StatusBadRequest, "provider query parameter is required")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), provider)
	if err != nil {
		// A limiter outage must not drop provider traffic.
		slog.Warn("rate limiter unavailable, admitting request",
			logging.Provider(provider), logging.Error(err))
	} else if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	defer r.Body.Close()
	if len(body) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "empty request body")
		return
	}

	result, err := h.service.Ingest(r.Context(), provider, body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			httputil.WriteError(w, http.StatusNotFound, "no active platform for provider")
		case errors.Is(err, service.ErrPlatformInactive):
			httputil.WriteError(w, http.StatusForbidden, "platform is inactive")
		case errors.Is(err, service.ErrIngestDisabled):
			httputil.WriteError(w, http.StatusServiceUnavailable, "inbound ingestion is disabled")
		case errors.Is(err, service.ErrBadPayload):
			httputil.WriteError(w, http.StatusBadRequest, "payload must be a JSON object or array")
		default:
			slog.Error("ingest failed", logging.Provider(provider), logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, result)
}
