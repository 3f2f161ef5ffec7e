package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tripdesk/syncbridge/internal/extract"
	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/metrics"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/repository"
	"github.com/tripdesk/syncbridge/internal/transform"
	"github.com/tripdesk/syncbridge/internal/trigger"
)

// Processor drains pending events through the trigger filter, the transform
// engine and the applier. One event's failure never aborts the batch.
type Processor struct {
	repo   repository.Repository
	specs  *extract.Registry
	engine *transform.Engine
}

// NewProcessor wires the inbound pipeline.
func NewProcessor(repo repository.Repository, specs *extract.Registry, engine *transform.Engine) *Processor {
	return &Processor{repo: repo, specs: specs, engine: engine}
}

// ProcessPending claims up to limit pending events and runs each to a
// terminal status. The settings snapshot is loaded once for the whole batch.
func (p *Processor) ProcessPending(ctx context.Context, limit int) (*models.ProcessResult, error) {
	settings, err := p.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings snapshot: %w", err)
	}

	events, err := p.repo.ClaimPendingEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}

	result := &models.ProcessResult{Results: []models.EventProcessOutcome{}}
	for _, ev := range events {
		outcome := p.processOne(ctx, ev, settings)
		result.Results = append(result.Results, outcome)
		result.Processed++
		metrics.EventsProcessed.WithLabelValues(string(outcome.Status)).Inc()
	}
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, ev *models.IntegrationEvent, settings models.Settings) models.EventProcessOutcome {
	started := time.Now()
	defer func() {
		metrics.ProcessingDuration.Observe(time.Since(started).Seconds())
	}()

	outcome := models.EventProcessOutcome{ID: ev.ID}

	fail := func(logLine string, err error) models.EventProcessOutcome {
		outcome.Status = models.EventFailed
		outcome.Error = err.Error()
		line := fmt.Sprintf("%s: %v", logLine, err)
		if uerr := p.repo.UpdateEventStatus(ctx, ev.ID, models.EventFailed, line); uerr != nil {
			slog.Error("failed to record event failure", logging.EventID(ev.ID), logging.Error(uerr))
		}
		return outcome
	}

	// Trigger filter. Pipeline and stage come from the payload's synthetic
	// dotted keys, already resolved against the provider's extraction spec
	// at ingest; re-resolve here so poller-created events filter the same
	// way.
	pipelineID, stageID := p.resolveStageRef(ev)

	triggers, err := p.repo.ListActiveTriggers(ctx, ev.IntegrationID)
	if err != nil {
		return fail("failed to load triggers", err)
	}

	decision := trigger.Decide(triggers, pipelineID, stageID, ev.EntityType)

	// Transform.
	fieldMaps, err := p.repo.ListActiveFieldMaps(ctx, ev.IntegrationID, models.DirectionInbound)
	if err != nil {
		return fail("failed to load field maps", err)
	}

	logLines := []string{decision.Log}
	if decision.Outcome == trigger.Ignore {
		// Sync-always maps flow even when no trigger matched. Without any,
		// the event terminates here.
		fieldMaps = syncAlwaysOnly(fieldMaps)
		if len(fieldMaps) == 0 {
			outcome.Status = models.EventIgnored
			slog.Debug("event ignored by trigger filter",
				logging.EventID(ev.ID), logging.Pipeline(pipelineID), logging.Stage(stageID))
			if err := p.repo.UpdateEventStatus(ctx, ev.ID, models.EventIgnored, decision.Log); err != nil {
				slog.Error("failed to mark event ignored", logging.EventID(ev.ID), logging.Error(err))
			}
			return outcome
		}
		logLines = append(logLines, fmt.Sprintf("%d sync-always field map(s) bypass the trigger filter", len(fieldMaps)))
	}

	mapped := p.engine.Map(ev.Payload, fieldMaps)
	logLines = append(logLines, mapped.Warnings...)
	logLines = append(logLines, fmt.Sprintf("mapped %d field(s)", len(mapped.Fields)))

	// The mapping result is stored on the event regardless of mode, so
	// shadow runs leave an auditable record of what would have been written.
	if err := p.repo.SetEventMapped(ctx, ev.ID, mapped.Fields); err != nil {
		return fail("failed to store mapping audit", err)
	}

	// Applier. Per-event shadow triggers win over the global flags.
	shadow := decision.Outcome == trigger.Shadow ||
		settings.ShadowModeEnabled || !settings.WriteModeEnabled

	if shadow {
		outcome.Status = models.EventProcessedShadow
		logLines = append(logLines, "shadow mode: entity write withheld")
		if err := p.repo.UpdateEventStatus(ctx, ev.ID, models.EventProcessedShadow, logLines...); err != nil {
			slog.Error("failed to mark event shadow-processed", logging.EventID(ev.ID), logging.Error(err))
		}
		return outcome
	}

	if ev.ExternalID == "" {
		return fail("cannot apply", fmt.Errorf("event has no external id"))
	}

	if err := p.repo.UpsertCard(ctx, ev.IntegrationID, ev.ExternalID, mapped.Fields); err != nil {
		// Inbound write failures surface for manual reprocessing; the engine
		// never retries them automatically.
		return fail("entity upsert failed", err)
	}

	outcome.Status = models.EventProcessed
	logLines = append(logLines, fmt.Sprintf("upserted card for external id %s", ev.ExternalID))
	if err := p.repo.UpdateEventStatus(ctx, ev.ID, models.EventProcessed, logLines...); err != nil {
		slog.Error("failed to mark event processed", logging.EventID(ev.ID), logging.Error(err))
	}
	return outcome
}

func syncAlwaysOnly(maps []*models.FieldMap) []*models.FieldMap {
	var kept []*models.FieldMap
	for _, m := range maps {
		if m.SyncAlways {
			kept = append(kept, m)
		}
	}
	return kept
}

// resolveStageRef finds the event's external pipeline and stage. Events
// carry flattened payloads, so candidate paths resolve uniformly whatever
// the provider called the fields.
func (p *Processor) resolveStageRef(ev *models.IntegrationEvent) (pipelineID, stageID string) {
	var spec *extract.Spec
	if s := p.specs.Find(ev.Source); s != nil {
		spec = s
	}
	if spec == nil {
		// Fall back to the CRM spec's candidates; deal events dominate the
		// trigger table.
		spec = p.specs.Find("activecampaign")
	}
	if spec == nil {
		return "", ""
	}
	fields := spec.Extract(ev.Payload)
	return fields.PipelineID, fields.StageID
}

// Reprocess returns a failed event to pending so the next batch picks it
// up. Only failed events are eligible; anything else is a state error.
func (p *Processor) Reprocess(ctx context.Context, eventID string) error {
	ev, err := p.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.Status != models.EventFailed {
		return fmt.Errorf("event %s is %s, only failed events can be reprocessed", eventID, ev.Status)
	}
	return p.repo.UpdateEventStatus(ctx, eventID, models.EventPending, "manually requeued for reprocessing")
}
