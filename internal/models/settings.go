package models

// Settings is a snapshot of the process-wide integration flags. It is loaded
// once at the start of each ingest request, processor batch and dispatcher
// sweep and passed explicitly; changes take effect on the next cycle, never
// mid-batch.
type Settings struct {
	ShadowModeEnabled    bool
	WriteModeEnabled     bool
	InboundIngestEnabled bool
}

// Settings table keys.
const (
	SettingShadowMode    = "SHADOW_MODE_ENABLED"
	SettingWriteMode     = "WRITE_MODE_ENABLED"
	SettingInboundIngest = "INBOUND_INGEST_ENABLED"
)

// DefaultSettings are used when a key is absent from the settings table.
// Write mode defaults on and shadow mode off, matching a freshly provisioned
// integration.
func DefaultSettings() Settings {
	return Settings{
		ShadowModeEnabled:    false,
		WriteModeEnabled:     true,
		InboundIngestEnabled: true,
	}
}
