package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tripdesk/syncbridge/internal/models"
)

var (
	ErrPlatformNotFound = errors.New("platform not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrOutboundNotFound = errors.New("outbound item not found")
	ErrCardNotFound     = errors.New("card not found")
)

// Repository is the durable store behind every engine component. All
// cross-invocation coordination happens through it; invocations share no
// in-process state.
type Repository interface {
	// Platforms
	GetPlatformByProvider(ctx context.Context, provider string) (*models.Platform, error)
	TouchPlatformLastEvent(ctx context.Context, platformID string, at time.Time) error

	// Integration events. InsertEvent reports false when the
	// (integration_id, idempotency_key) pair already exists; the unique
	// constraint at the store is the idempotency invariant, any prior
	// existence check is advisory.
	InsertEvent(ctx context.Context, ev *models.IntegrationEvent) (bool, error)
	GetEvent(ctx context.Context, id string) (*models.IntegrationEvent, error)
	ListEvents(ctx context.Context, f models.EventFilter) ([]*models.IntegrationEvent, error)
	ExistingIdempotencyKeys(ctx context.Context, integrationID string, keys []string) (map[string]bool, error)
	ClaimPendingEvents(ctx context.Context, limit int) ([]*models.IntegrationEvent, error)
	UpdateEventStatus(ctx context.Context, id string, status models.EventStatus, logLines ...string) error
	SetEventMapped(ctx context.Context, id string, mapped map[string]any) error

	// Filter and mapping configuration
	ListActiveTriggers(ctx context.Context, integrationID string) ([]*models.InboundTrigger, error)
	ListActiveFieldMaps(ctx context.Context, integrationID string, direction models.Direction) ([]*models.FieldMap, error)
	GetSettings(ctx context.Context) (models.Settings, error)

	// Outbound queue
	EnqueueOutbound(ctx context.Context, item *models.OutboundQueueItem) error
	GetOutbound(ctx context.Context, id string) (*models.OutboundQueueItem, error)
	ClaimOutboundPending(ctx context.Context, limit int, now time.Time) ([]*models.OutboundQueueItem, error)
	CountOutboundPending(ctx context.Context) (int, error)
	MarkOutboundSent(ctx context.Context, id string, response string) error
	MarkOutboundRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time, logLine string) error
	MarkOutboundFailed(ctx context.Context, id string, attempts int, logLine string) error

	// Internal entity target
	UpsertCard(ctx context.Context, integrationID, externalID string, fields map[string]any) error
	GetCard(ctx context.Context, integrationID, externalID string) (*models.Card, error)

	Ping(ctx context.Context) error
}
