// Package trigger decides whether an inbound event passes the operator's
// (pipeline, stage) filter rules. The decision is pure: two small inputs,
// no I/O.
package trigger

import (
	"fmt"
	"slices"

	"github.com/tripdesk/syncbridge/internal/models"
)

// Outcome is the filter's verdict for one event.
type Outcome int

const (
	Allow Outcome = iota
	Shadow
	Ignore
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Shadow:
		return "shadow"
	default:
		return "ignore"
	}
}

// Decision carries the verdict and the diagnostic line for the processing
// log. Operators query the log text to find trigger coverage gaps, so the
// unmatched pipeline/stage pair is always named.
type Decision struct {
	Outcome Outcome
	Log     string
}

// Decide applies the trigger rules to one event's (pipeline, stage, entity).
// With no active triggers every event is allowed (fail-open). With any
// active trigger, only matching pairs pass; absence of a match ignores the
// event rather than dropping it silently.
func Decide(triggers []*models.InboundTrigger, pipelineID, stageID, entityType string) Decision {
	active := 0
	for _, tr := range triggers {
		if !tr.IsActive {
			continue
		}
		active++
		if !matches(tr, pipelineID, stageID, entityType) {
			continue
		}
		switch tr.ActionType {
		case models.TriggerAllow:
			return Decision{
				Outcome: Allow,
				Log:     fmt.Sprintf("trigger %s allowed pipeline %s stage %s", tr.ID, pipelineID, stageID),
			}
		case models.TriggerShadow:
			return Decision{
				Outcome: Shadow,
				Log:     fmt.Sprintf("trigger %s routed pipeline %s stage %s to shadow", tr.ID, pipelineID, stageID),
			}
		case models.TriggerDeny:
			return Decision{
				Outcome: Ignore,
				Log:     fmt.Sprintf("trigger %s denied pipeline %s stage %s", tr.ID, pipelineID, stageID),
			}
		}
	}

	if active == 0 {
		return Decision{Outcome: Allow, Log: "no active triggers configured; allowing by default"}
	}
	return Decision{
		Outcome: Ignore,
		Log:     fmt.Sprintf("no trigger matches pipeline %s stage %s; event ignored", pipelineID, stageID),
	}
}

func matches(tr *models.InboundTrigger, pipelineID, stageID, entityType string) bool {
	if tr.ExternalPipelineID != pipelineID {
		return false
	}
	// nil stage is a wildcard over the pipeline.
	if tr.ExternalStageID != nil && *tr.ExternalStageID != stageID {
		return false
	}
	if len(tr.EntityTypes) > 0 && !slices.Contains(tr.EntityTypes, entityType) {
		return false
	}
	return true
}
