package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tripdesk/syncbridge/internal/httputil"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/repository"
	"github.com/tripdesk/syncbridge/internal/service"
)

// EventsHandler is the operator surface over the event store: listing,
// inspecting processing logs and requeueing failed events.
type EventsHandler struct {
	repo      repository.Repository
	processor *service.Processor
}

func NewEventsHandler(repo repository.Repository, processor *service.Processor) *EventsHandler {
	return &EventsHandler{repo: repo, processor: processor}
}

// HandleList serves GET /events with optional integrationId, status, limit
// and offset query parameters.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := models.EventFilter{
		IntegrationID: r.URL.Query().Get("integrationId"),
		Status:        models.EventStatus(r.URL.Query().Get("status")),
		Limit:         100,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "offset must be non-negative")
			return
		}
		filter.Offset = n
	}

	events, err := h.repo.ListEvents(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// HandleEvent serves GET /events/{id} and POST /events/{id}/reprocess.
func (h *EventsHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/events/")
	if rest == "" {
		httputil.WriteError(w, http.StatusNotFound, "event id is required")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/reprocess"); ok {
		h.reprocess(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ev, err := h.repo.GetEvent(r.Context(), rest)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "event not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func (h *EventsHandler) reprocess(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.processor.Reprocess(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "event not found")
			return
		}
		httputil.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}
