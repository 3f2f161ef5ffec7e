package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tripdesk/syncbridge/internal/handlers"
	"github.com/tripdesk/syncbridge/internal/middleware"
)

// NewRouter constructs a ServeMux with the sync engine's routes registered.
func NewRouter(ingest *handlers.IngestHandler, pipeline *handlers.PipelineHandler, events *handlers.EventsHandler, health *handlers.HealthHandler) http.Handler {
	mux := http.NewServeMux()

	// Webhook ingress
	mux.HandleFunc("/ingest", ingest.HandleIngest)

	// Batch entrypoints
	mux.HandleFunc("/events/process", pipeline.HandleProcess)
	mux.HandleFunc("/outbound/dispatch", pipeline.HandleDispatch)
	mux.HandleFunc("/outbound/events", pipeline.HandleCapture)
	mux.HandleFunc("/poll", pipeline.HandlePoll)

	// Operator surface
	mux.HandleFunc("/events", events.HandleList)
	mux.HandleFunc("/events/", events.HandleEvent)

	// Health endpoints
	mux.HandleFunc("/healthz", health.Health)
	mux.HandleFunc("/readyz", health.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
