package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tripdesk/syncbridge/internal/dlq"
	"github.com/tripdesk/syncbridge/internal/extract"
	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/metrics"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/paths"
	"github.com/tripdesk/syncbridge/internal/repository"
)

var (
	// ErrUnknownProvider means no platform row matches the provider value.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrPlatformInactive means the platform exists but is switched off.
	ErrPlatformInactive = errors.New("platform is inactive")
	// ErrIngestDisabled means the inbound-ingest flag is off.
	ErrIngestDisabled = errors.New("inbound ingestion is disabled")
	// ErrBadPayload means the request body is not a JSON object or array.
	ErrBadPayload = errors.New("payload is not an object or array")
)

// IngestService normalizes inbound webhook payloads into integration
// events. Each request is one stateless invocation; the idempotency
// constraint at the store is the only cross-request coordination.
type IngestService struct {
	repo      repository.Repository
	specs     *extract.Registry
	forwarder *Forwarder
	dlqWriter dlq.Writer
}

// NewIngestService wires the ingress. dlqWriter may be nil.
func NewIngestService(repo repository.Repository, specs *extract.Registry, forwarder *Forwarder, dlqWriter dlq.Writer) *IngestService {
	return &IngestService{
		repo:      repo,
		specs:     specs,
		forwarder: forwarder,
		dlqWriter: dlqWriter,
	}
}

// Ingest validates the platform, splits the body into individual payloads
// and inserts one event per payload. Item failures are isolated: the batch
// response reports them in Errors while other items proceed.
func (s *IngestService) Ingest(ctx context.Context, provider string, body []byte) (*models.IngestResult, error) {
	platform, err := s.repo.GetPlatformByProvider(ctx, provider)
	if err != nil {
		if errors.Is(err, repository.ErrPlatformNotFound) {
			s.deadLetter(ctx, provider, "unknown_provider", err, body)
			return nil, ErrUnknownProvider
		}
		return nil, fmt.Errorf("look up platform: %w", err)
	}
	if !platform.IsActive {
		s.deadLetter(ctx, provider, "inactive_platform", ErrPlatformInactive, body)
		return nil, ErrPlatformInactive
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings snapshot: %w", err)
	}
	if !settings.InboundIngestEnabled {
		return nil, ErrIngestDisabled
	}

	spec := s.specs.Find(provider)
	if spec == nil {
		// Platform configured but no extraction spec shipped for it.
		s.deadLetter(ctx, provider, "no_extraction_spec", ErrUnknownProvider, body)
		return nil, ErrUnknownProvider
	}

	items, err := splitBatch(body)
	if err != nil {
		s.deadLetter(ctx, provider, "malformed_payload", err, body)
		return nil, err
	}

	result := &models.IngestResult{EventIDs: []string{}, Errors: []string{}}
	result.EventsReceived = len(items)

	var forwardable [][]byte

	for i, item := range items {
		fields := spec.Extract(item)
		if fields.IdempotencyKey == "" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("item %d: no idempotency key at any of %v", i, spec.IdempotencyKeys))
			continue
		}

		ev := &models.IntegrationEvent{
			ID:             uuid.New().String(),
			IntegrationID:  platform.IntegrationID,
			Source:         platform.Provider,
			IdempotencyKey: fields.IdempotencyKey,
			EntityType:     fields.EntityType,
			EventType:      fields.EventType,
			ExternalID:     fields.ExternalID,
			Payload:        paths.Flatten(item),
			Status:         models.EventPending,
			ProcessingLog:  []string{fmt.Sprintf("ingested from provider %s", provider)},
			CreatedAt:      time.Now().UTC(),
		}

		inserted, err := s.repo.InsertEvent(ctx, ev)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		if !inserted {
			// Duplicate key: drop silently, count separately from failures.
			result.EventsDuplicated++
			metrics.EventsDuplicated.WithLabelValues(provider).Inc()
			continue
		}

		result.EventsInserted++
		result.EventIDs = append(result.EventIDs, ev.ID)
		metrics.EventsIngested.WithLabelValues(provider).Inc()

		if s.qualifiesForForward(platform, fields.Label) {
			if raw, err := json.Marshal(item); err == nil {
				forwardable = append(forwardable, raw)
			}
		}
	}

	if result.EventsInserted > 0 {
		if err := s.repo.TouchPlatformLastEvent(ctx, platform.ID, time.Now().UTC()); err != nil {
			slog.Warn("failed to update platform high-water mark",
				logging.Provider(provider), logging.Error(err))
		}
	}

	if s.forwarder != nil && len(platform.ForwardURLs) > 0 {
		for _, raw := range forwardable {
			s.forwarder.Forward(platform.ForwardURLs, raw)
		}
	}

	return result, nil
}

// qualifiesForForward checks the payload's label against the platform's
// allow-list. An empty allow-list forwards everything.
func (s *IngestService) qualifiesForForward(platform *models.Platform, label string) bool {
	if len(platform.ForwardURLs) == 0 {
		return false
	}
	if len(platform.ForwardLabels) == 0 {
		return true
	}
	return slices.Contains(platform.ForwardLabels, label)
}

func (s *IngestService) deadLetter(ctx context.Context, provider, reason string, cause error, body []byte) {
	metrics.IngestRejected.WithLabelValues(reason).Inc()
	if s.dlqWriter == nil {
		return
	}
	entry := &dlq.Entry{
		Timestamp: time.Now().UTC(),
		Provider:  provider,
		Reason:    reason,
		Error:     cause.Error(),
		Payload:   body,
	}
	if err := s.dlqWriter.Write(ctx, entry); err != nil {
		slog.Warn("failed to write dlq entry", logging.Provider(provider), logging.Error(err))
	}
}

// splitBatch accepts a single JSON object or an array of objects.
func splitBatch(body []byte) ([]map[string]any, error) {
	var single map[string]any
	if err := json.Unmarshal(body, &single); err == nil {
		return []map[string]any{single}, nil
	}

	var batch []map[string]any
	if err := json.Unmarshal(body, &batch); err == nil {
		return batch, nil
	}

	return nil, ErrBadPayload
}
