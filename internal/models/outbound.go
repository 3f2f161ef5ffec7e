package models

import "time"

// OutboundStatus is the lifecycle state of an OutboundQueueItem.
type OutboundStatus string

const (
	OutboundPending    OutboundStatus = "pending"
	OutboundProcessing OutboundStatus = "processing"
	OutboundSent       OutboundStatus = "sent"
	OutboundFailed     OutboundStatus = "failed"
)

// Outbound event types form a small closed set; the dispatcher switches on
// them when building the provider request.
const (
	OutboundStageChange = "stage_change"
	OutboundFieldUpdate = "field_update"
	OutboundWon         = "won"
	OutboundLost        = "lost"
)

// OutboundQueueItem is one pending or attempted delivery to the external
// CRM. Attempts only increases; sent and failed are terminal.
type OutboundQueueItem struct {
	ID            string         `json:"id"`
	CardID        string         `json:"card_id"`
	IntegrationID string         `json:"integration_id"`
	ExternalID    string         `json:"external_id"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	Status        OutboundStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	LastResponse  string         `json:"last_response,omitempty"`
	ProcessingLog []string       `json:"processing_log"`
	CreatedAt     time.Time      `json:"created_at"`
}
