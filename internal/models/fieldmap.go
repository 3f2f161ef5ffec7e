package models

// Direction scopes a FieldMap row to one flow of data.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// FieldMap declares the correspondence between one internal entity field and
// one external field identifier. Inbound and outbound rows are independent:
// an inbound field participates in dispatch only if a separate outbound row
// exists for it.
type FieldMap struct {
	ID                string    `json:"id"`
	IntegrationID     string    `json:"integration_id"`
	Direction         Direction `json:"direction"`
	LocalFieldKey     string    `json:"local_field_key"`
	ExternalFieldID   string    `json:"external_field_id"`
	ExternalFieldName string    `json:"external_field_name"`
	Section           string    `json:"section"`
	Transforms        []string  `json:"transforms,omitempty"`
	SyncAlways        bool      `json:"sync_always"`
	IsActive          bool      `json:"is_active"`
}
