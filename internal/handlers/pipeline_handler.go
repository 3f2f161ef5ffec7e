package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tripdesk/syncbridge/internal/httputil"
	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/service"
)

// PipelineHandler exposes the batch entrypoints: processor drain, dispatcher
// sweep, outbound capture and pull reconciliation. Each call is one
// stateless invocation of the underlying sweep.
type PipelineHandler struct {
	processor  *service.Processor
	dispatcher *service.Dispatcher
	poller     *service.Poller
	batchSize  int
	pollSecret string
}

func NewPipelineHandler(processor *service.Processor, dispatcher *service.Dispatcher, poller *service.Poller, batchSize int, pollSecret string) *PipelineHandler {
	return &PipelineHandler{
		processor:  processor,
		dispatcher: dispatcher,
		poller:     poller,
		batchSize:  batchSize,
		pollSecret: pollSecret,
	}
}

// HandleProcess drains one batch of pending events.
func (h *PipelineHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := h.processor.ProcessPending(r.Context(), h.batchSize)
	if err != nil {
		slog.Error("process batch failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleDispatch runs one outbound sweep. No body is required.
func (h *PipelineHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context())
	if err != nil {
		slog.Error("dispatch sweep failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleCapture enqueues one internal mutation for outbound delivery.
func (h *PipelineHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	item, err := h.dispatcher.Capture(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"id": item.ID})
}

// HandlePoll reconciles one external pipeline. The endpoint is protected by
// a shared secret because it can generate significant provider traffic.
func (h *PipelineHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	secret := r.Header.Get("X-Sync-Secret")
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}
	if h.pollSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.pollSecret)) != 1 {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid sync secret")
		return
	}

	var req models.PollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PipelineID == "" && req.DealID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "pipelineId or dealId is required")
		return
	}

	result, err := h.poller.Poll(r.Context(), &req)
	if err != nil {
		slog.Error("poll failed", logging.Pipeline(req.PipelineID), logging.Error(err))
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
