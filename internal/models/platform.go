package models

import "time"

// Platform is one configured inbound provider (a WhatsApp provider, the
// external CRM's webhook sender). The provider value matches the ?provider=
// query parameter on the ingest endpoint.
type Platform struct {
	ID            string     `json:"id"`
	IntegrationID string     `json:"integration_id"`
	Provider      string     `json:"provider"`
	Name          string     `json:"name"`
	IsActive      bool       `json:"is_active"`
	ForwardURLs   []string   `json:"forward_urls,omitempty"`
	ForwardLabels []string   `json:"forward_labels,omitempty"`
	LastEventAt   *time.Time `json:"last_event_at,omitempty"`
}

// Card is the minimal internal entity the applier upserts into. The full CRM
// schema lives outside the engine; this table exists so inbound mutations
// have a durable target.
type Card struct {
	ID            string         `json:"id"`
	IntegrationID string         `json:"integration_id"`
	ExternalID    string         `json:"external_id"`
	Fields        map[string]any `json:"fields"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
