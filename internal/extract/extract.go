// Package extract declares, per provider, where in a raw payload the fields
// the engine cares about live. Providers disagree on naming ("stage",
// "stage_id", "deal[stageid]"), so each logical field is an ordered list of
// candidate paths tried in declaration order.
package extract

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tripdesk/syncbridge/internal/paths"
)

// Spec describes one provider's payload shape.
type Spec struct {
	Provider        string   `yaml:"provider"`
	IdempotencyKeys []string `yaml:"idempotency_keys"`
	ExternalIDs     []string `yaml:"external_ids"`
	Pipelines       []string `yaml:"pipelines"`
	Stages          []string `yaml:"stages"`
	EntityTypes     []string `yaml:"entity_types"`
	EventTypes      []string `yaml:"event_types"`
	Labels          []string `yaml:"labels"`
	DefaultEntity   string   `yaml:"default_entity"`
	DefaultEvent    string   `yaml:"default_event"`
}

// Fields is what a spec pulls out of one payload.
type Fields struct {
	IdempotencyKey string
	ExternalID     string
	PipelineID     string
	StageID        string
	EntityType     string
	EventType      string
	Label          string
}

// Extract resolves every logical field against the payload. Absent fields
// stay empty; only the idempotency key is required by callers.
func (s *Spec) Extract(payload map[string]any) Fields {
	f := Fields{
		EntityType: s.DefaultEntity,
		EventType:  s.DefaultEvent,
	}
	if v, ok := paths.First(payload, s.IdempotencyKeys); ok {
		f.IdempotencyKey = v
	}
	if v, ok := paths.First(payload, s.ExternalIDs); ok {
		f.ExternalID = v
	}
	if v, ok := paths.First(payload, s.Pipelines); ok {
		f.PipelineID = v
	}
	if v, ok := paths.First(payload, s.Stages); ok {
		f.StageID = v
	}
	if v, ok := paths.First(payload, s.EntityTypes); ok {
		f.EntityType = v
	}
	if v, ok := paths.First(payload, s.EventTypes); ok {
		f.EventType = v
	}
	if v, ok := paths.First(payload, s.Labels); ok {
		f.Label = v
	}
	return f
}

// Registry holds specs keyed by provider name.
type Registry struct {
	specs map[string]*Spec
}

// NewRegistry constructs a registry from the given specs.
func NewRegistry(specs ...*Spec) *Registry {
	r := &Registry{specs: make(map[string]*Spec, len(specs))}
	for _, s := range specs {
		r.specs[strings.ToLower(s.Provider)] = s
	}
	return r
}

// Find returns the spec for a provider, or nil.
func (r *Registry) Find(provider string) *Spec {
	if r == nil {
		return nil
	}
	return r.specs[strings.ToLower(provider)]
}

// LoadFile reads additional specs from a YAML file and merges them over the
// registry, replacing any builtin spec for the same provider.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read extraction specs: %w", err)
	}
	var file struct {
		Providers []*Spec `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse extraction specs: %w", err)
	}
	for _, s := range file.Providers {
		if s.Provider == "" {
			return fmt.Errorf("extraction spec missing provider name")
		}
		r.specs[strings.ToLower(s.Provider)] = s
	}
	return nil
}
