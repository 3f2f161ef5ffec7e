package models

// TriggerAction is what a matching trigger does to an inbound event.
type TriggerAction string

const (
	TriggerAllow  TriggerAction = "allow"
	TriggerShadow TriggerAction = "shadow"
	TriggerDeny   TriggerAction = "deny"
)

// InboundTrigger is an operator-defined filter rule keyed by the external
// (pipeline, stage) pair. A nil ExternalStageID matches any stage of the
// pipeline.
type InboundTrigger struct {
	ID                 string        `json:"id"`
	IntegrationID      string        `json:"integration_id"`
	ExternalPipelineID string        `json:"external_pipeline_id"`
	ExternalStageID    *string       `json:"external_stage_id,omitempty"`
	EntityTypes        []string      `json:"entity_types"`
	ActionType         TriggerAction `json:"action_type"`
	IsActive           bool          `json:"is_active"`
}
