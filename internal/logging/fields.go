package logging

import "log/slog"

// Common field names for consistent logging across the engine.
const (
	FieldService     = "service"
	FieldProvider    = "provider"
	FieldIntegration = "integration_id"
	FieldEventID     = "event_id"
	FieldQueueItem   = "queue_item_id"
	FieldPipeline    = "pipeline_id"
	FieldStage       = "stage_id"
	FieldStatus      = "status"
	FieldAttempts    = "attempts"
	FieldError       = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Provider returns a slog attribute for the inbound provider.
func Provider(name string) slog.Attr {
	return slog.String(FieldProvider, name)
}

// Integration returns a slog attribute for the integration id.
func Integration(id string) slog.Attr {
	return slog.String(FieldIntegration, id)
}

// EventID returns a slog attribute for an integration event id.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// QueueItem returns a slog attribute for an outbound queue item id.
func QueueItem(id string) slog.Attr {
	return slog.String(FieldQueueItem, id)
}

// Pipeline returns a slog attribute for the external pipeline id.
func Pipeline(id string) slog.Attr {
	return slog.String(FieldPipeline, id)
}

// Stage returns a slog attribute for the external stage id.
func Stage(id string) slog.Attr {
	return slog.String(FieldStage, id)
}

// Attempts returns a slog attribute for a delivery attempt count.
func Attempts(n int) slog.Attr {
	return slog.Int(FieldAttempts, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
