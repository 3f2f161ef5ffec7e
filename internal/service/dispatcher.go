package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tripdesk/syncbridge/internal/crm"
	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/metrics"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/paths"
	"github.com/tripdesk/syncbridge/internal/repository"
	"github.com/tripdesk/syncbridge/internal/transform"
)

// Dispatcher drains the outbound queue toward the external CRM. Each sweep
// claims a batch of due pending items, attempts every item independently and
// records the terminal or retry state back on the row. Rows left in
// processing by a crash stay there for an operator to inspect; the sweep
// never reclaims them.
type Dispatcher struct {
	repo        repository.Repository
	crm         *crm.Client
	transforms  *transform.Registry
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
}

// NewDispatcher wires the outbound side of the engine.
func NewDispatcher(repo repository.Repository, client *crm.Client, transforms *transform.Registry, batchSize, maxAttempts int, baseDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		crm:         client,
		transforms:  transforms,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Capture enqueues one internal mutation for outbound delivery. The item
// starts pending with zero attempts; the next sweep picks it up.
func (d *Dispatcher) Capture(ctx context.Context, req *models.CaptureRequest) (*models.OutboundQueueItem, error) {
	switch req.EventType {
	case models.OutboundStageChange, models.OutboundFieldUpdate, models.OutboundWon, models.OutboundLost:
	default:
		return nil, fmt.Errorf("unsupported outbound event type %q", req.EventType)
	}
	if req.ExternalID == "" {
		return nil, fmt.Errorf("externalId is required")
	}

	item := &models.OutboundQueueItem{
		ID:            uuid.New().String(),
		CardID:        req.CardID,
		IntegrationID: req.IntegrationID,
		ExternalID:    req.ExternalID,
		EventType:     req.EventType,
		Payload:       req.Payload,
		Status:        models.OutboundPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.repo.EnqueueOutbound(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue outbound item: %w", err)
	}
	slog.Info("outbound item captured",
		logging.QueueItem(item.ID),
		logging.Integration(item.IntegrationID),
		slog.String("event_type", item.EventType))
	return item, nil
}

// Dispatch runs one sweep. The settings snapshot is read once up front; a
// shadow-mode deployment leaves the queue untouched so nothing reaches the
// external CRM.
func (d *Dispatcher) Dispatch(ctx context.Context) (*models.DispatchResult, error) {
	settings, err := d.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings snapshot: %w", err)
	}

	result := &models.DispatchResult{Results: []models.DispatchOutcome{}}
	if settings.ShadowModeEnabled {
		slog.Info("shadow mode enabled, outbound sweep skipped")
		return result, nil
	}

	items, err := d.repo.ClaimOutboundPending(ctx, d.batchSize, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim outbound items: %w", err)
	}

	for _, item := range items {
		outcome := d.dispatchOne(ctx, item)
		result.Results = append(result.Results, outcome)
		result.Processed++
		switch outcome.Status {
		case models.OutboundSent:
			result.Sent++
			metrics.DispatchAttempts.WithLabelValues("sent").Inc()
		case models.OutboundFailed:
			result.Failed++
			metrics.DispatchAttempts.WithLabelValues("failed").Inc()
		default:
			metrics.DispatchAttempts.WithLabelValues("retry").Inc()
		}
	}

	if depth, err := d.repo.CountOutboundPending(ctx); err == nil {
		metrics.OutboundQueueDepth.Set(float64(depth))
	}
	return result, nil
}

// dispatchOne attempts a single claimed item. A provider failure increments
// attempts and either reschedules the row with linear backoff or, at the
// attempt cap, parks it as terminal failed.
func (d *Dispatcher) dispatchOne(ctx context.Context, item *models.OutboundQueueItem) models.DispatchOutcome {
	response, err := d.send(ctx, item)
	if err == nil {
		if markErr := d.repo.MarkOutboundSent(ctx, item.ID, response); markErr != nil {
			slog.Error("failed to mark outbound item sent",
				logging.QueueItem(item.ID), logging.Error(markErr))
			return models.DispatchOutcome{ID: item.ID, Status: item.Status, Error: markErr.Error()}
		}
		slog.Info("outbound item delivered",
			logging.QueueItem(item.ID),
			slog.String("event_type", item.EventType),
			logging.Attempts(item.Attempts+1))
		return models.DispatchOutcome{ID: item.ID, Status: models.OutboundSent}
	}

	attempts := item.Attempts + 1
	logLine := fmt.Sprintf("attempt %d failed: %v", attempts, err)

	if attempts >= d.maxAttempts {
		if markErr := d.repo.MarkOutboundFailed(ctx, item.ID, attempts, logLine); markErr != nil {
			slog.Error("failed to mark outbound item failed",
				logging.QueueItem(item.ID), logging.Error(markErr))
		}
		slog.Error("outbound item exhausted retries",
			logging.QueueItem(item.ID),
			logging.Attempts(attempts),
			logging.Error(err))
		return models.DispatchOutcome{ID: item.ID, Status: models.OutboundFailed, Error: err.Error()}
	}

	nextRetryAt := time.Now().UTC().Add(time.Duration(attempts) * d.baseDelay)
	if markErr := d.repo.MarkOutboundRetry(ctx, item.ID, attempts, nextRetryAt, logLine); markErr != nil {
		slog.Error("failed to reschedule outbound item",
			logging.QueueItem(item.ID), logging.Error(markErr))
	}
	slog.Warn("outbound item rescheduled",
		logging.QueueItem(item.ID),
		logging.Attempts(attempts),
		slog.Time("next_retry_at", nextRetryAt),
		logging.Error(err))
	return models.DispatchOutcome{ID: item.ID, Status: models.OutboundPending, Error: err.Error()}
}

// send builds and performs the provider call for one item.
func (d *Dispatcher) send(ctx context.Context, item *models.OutboundQueueItem) (string, error) {
	switch item.EventType {
	case models.OutboundStageChange:
		stageID, ok := stringField(item.Payload, "stage_id")
		if !ok {
			return "", fmt.Errorf("stage_change payload missing stage_id")
		}
		return d.crm.UpdateDealStage(ctx, item.ExternalID, stageID)
	case models.OutboundFieldUpdate:
		fields, err := d.buildFieldUpdate(ctx, item)
		if err != nil {
			return "", err
		}
		return d.crm.UpdateDealFields(ctx, item.ExternalID, fields)
	case models.OutboundWon:
		return d.crm.UpdateDealStatus(ctx, item.ExternalID, crm.StatusWon)
	case models.OutboundLost:
		return d.crm.UpdateDealStatus(ctx, item.ExternalID, crm.StatusLost)
	default:
		return "", fmt.Errorf("unsupported outbound event type %q", item.EventType)
	}
}

// buildFieldUpdate translates internal field keys into external field ids
// through the integration's outbound maps. Only explicitly promoted fields
// leave the system; an inbound map alone never makes a field dispatchable.
func (d *Dispatcher) buildFieldUpdate(ctx context.Context, item *models.OutboundQueueItem) (map[string]any, error) {
	maps, err := d.repo.ListActiveFieldMaps(ctx, item.IntegrationID, models.DirectionOutbound)
	if err != nil {
		return nil, fmt.Errorf("load outbound field maps: %w", err)
	}

	fields := make(map[string]any)
	for _, m := range maps {
		v, ok := item.Payload[m.LocalFieldKey]
		if !ok {
			continue
		}
		v, warnings := d.transforms.Apply(v, m.Transforms)
		for _, w := range warnings {
			slog.Warn("outbound transform warning",
				logging.QueueItem(item.ID),
				slog.String("field", m.LocalFieldKey),
				slog.String("warning", w))
		}
		fields[m.ExternalFieldID] = v
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no outbound field map matched the payload")
	}
	return fields, nil
}

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := paths.Stringify(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
