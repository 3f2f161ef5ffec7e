package models

import "time"

// EventStatus is the lifecycle state of an IntegrationEvent.
type EventStatus string

const (
	EventPending         EventStatus = "pending"
	EventProcessing      EventStatus = "processing"
	EventIgnored         EventStatus = "ignored"
	EventProcessed       EventStatus = "processed"
	EventProcessedShadow EventStatus = "processed_shadow"
	EventFailed          EventStatus = "failed"
)

// IntegrationEvent is one ingested external occurrence. Rows are created by
// the ingress or the poller and only ever mutated by the processing pipeline;
// they are never deleted except by explicit operator purge.
type IntegrationEvent struct {
	ID             string         `json:"id"`
	IntegrationID  string         `json:"integration_id"`
	Source         string         `json:"source"`
	IdempotencyKey string         `json:"idempotency_key"`
	EntityType     string         `json:"entity_type"`
	EventType      string         `json:"event_type"`
	ExternalID     string         `json:"external_id"`
	Payload        map[string]any `json:"payload"`
	MappedFields   map[string]any `json:"mapped_fields,omitempty"`
	Status         EventStatus    `json:"status"`
	ProcessingLog  []string       `json:"processing_log"`
	CreatedAt      time.Time      `json:"created_at"`
}

// EventFilter narrows ListEvents for the operator surface.
type EventFilter struct {
	IntegrationID string
	Status        EventStatus
	Limit         int
	Offset        int
}
