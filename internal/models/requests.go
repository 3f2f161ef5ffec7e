package models

// IngestResult is the 202 body of the ingest endpoint.
type IngestResult struct {
	EventsReceived   int      `json:"eventsReceived"`
	EventsInserted   int      `json:"eventsInserted"`
	EventsDuplicated int      `json:"eventsDuplicated"`
	EventIDs         []string `json:"eventIds"`
	Errors           []string `json:"errors"`
}

// ProcessResult summarizes one processor batch.
type ProcessResult struct {
	Processed int                   `json:"processed"`
	Results   []EventProcessOutcome `json:"results"`
}

// EventProcessOutcome is the terminal state one event reached in a batch.
type EventProcessOutcome struct {
	ID     string      `json:"id"`
	Status EventStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// DispatchResult summarizes one dispatcher sweep.
type DispatchResult struct {
	Processed int               `json:"processed"`
	Sent      int               `json:"sent"`
	Failed    int               `json:"failed"`
	Results   []DispatchOutcome `json:"results"`
}

// DispatchOutcome is the state one outbound item reached in a sweep.
type DispatchOutcome struct {
	ID     string         `json:"id"`
	Status OutboundStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// PollRequest asks the poller to reconcile one external pipeline.
type PollRequest struct {
	PipelineID  string `json:"pipelineId"`
	Limit       int    `json:"limit,omitempty"`
	ForceUpdate bool   `json:"forceUpdate,omitempty"`
	DealID      string `json:"dealId,omitempty"`
}

// PollResult reports one reconciliation run.
type PollResult struct {
	PipelineID       string `json:"pipelineId"`
	DealsFetched     int    `json:"dealsFetched"`
	AlreadySynced    int    `json:"alreadySynced"`
	NewEventsCreated int    `json:"newEventsCreated"`
	Error            string `json:"error,omitempty"`
}

// CaptureRequest is the internal-mutation hook body that enqueues an
// outbound delivery.
type CaptureRequest struct {
	CardID        string         `json:"cardId"`
	IntegrationID string         `json:"integrationId"`
	ExternalID    string         `json:"externalId"`
	EventType     string         `json:"eventType"`
	Payload       map[string]any `json:"payload"`
}
