package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripdesk/syncbridge/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Ping verifies database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetPlatformByProvider retrieves the platform row for a provider value.
func (r *PostgresRepository) GetPlatformByProvider(ctx context.Context, provider string) (*models.Platform, error) {
	query := `
		SELECT id, integration_id, provider, name, is_active,
		       forward_urls, forward_labels, last_event_at
		FROM platforms
		WHERE provider = $1
	`

	p := &models.Platform{}
	var forwardURLs, forwardLabels []byte
	err := r.pool.QueryRow(ctx, query, provider).Scan(
		&p.ID, &p.IntegrationID, &p.Provider, &p.Name, &p.IsActive,
		&forwardURLs, &forwardLabels, &p.LastEventAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlatformNotFound
		}
		return nil, fmt.Errorf("failed to get platform: %w", err)
	}

	if err := json.Unmarshal(forwardURLs, &p.ForwardURLs); err != nil {
		return nil, fmt.Errorf("failed to decode forward urls: %w", err)
	}
	if err := json.Unmarshal(forwardLabels, &p.ForwardLabels); err != nil {
		return nil, fmt.Errorf("failed to decode forward labels: %w", err)
	}

	return p, nil
}

// TouchPlatformLastEvent advances the platform's last-event high-water mark.
func (r *PostgresRepository) TouchPlatformLastEvent(ctx context.Context, platformID string, at time.Time) error {
	query := `UPDATE platforms SET last_event_at = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, platformID, at)
	if err != nil {
		return fmt.Errorf("failed to touch platform: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlatformNotFound
	}
	return nil
}

// InsertEvent appends one event. The unique (integration_id, idempotency_key)
// index makes a duplicate ingestion a no-op reported as inserted=false, not
// an error and not a second row.
func (r *PostgresRepository) InsertEvent(ctx context.Context, ev *models.IntegrationEvent) (bool, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode payload: %w", err)
	}
	logLines, err := json.Marshal(emptyIfNil(ev.ProcessingLog))
	if err != nil {
		return false, fmt.Errorf("failed to encode processing log: %w", err)
	}

	query := `
		INSERT INTO integration_events
			(id, integration_id, source, idempotency_key, entity_type, event_type,
			 external_id, payload, status, processing_log, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (integration_id, idempotency_key) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		ev.ID, ev.IntegrationID, ev.Source, ev.IdempotencyKey, ev.EntityType, ev.EventType,
		ev.ExternalID, payload, ev.Status, logLines, ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

const eventColumns = `
	id, integration_id, source, idempotency_key, entity_type, event_type,
	external_id, payload, mapped_fields, status, processing_log, created_at
`

func scanEvent(row pgx.Row) (*models.IntegrationEvent, error) {
	ev := &models.IntegrationEvent{}
	var payload, mapped, logLines []byte
	err := row.Scan(
		&ev.ID, &ev.IntegrationID, &ev.Source, &ev.IdempotencyKey, &ev.EntityType, &ev.EventType,
		&ev.ExternalID, &payload, &mapped, &ev.Status, &logLines, &ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if mapped != nil {
		if err := json.Unmarshal(mapped, &ev.MappedFields); err != nil {
			return nil, fmt.Errorf("failed to decode mapped fields: %w", err)
		}
	}
	if err := json.Unmarshal(logLines, &ev.ProcessingLog); err != nil {
		return nil, fmt.Errorf("failed to decode processing log: %w", err)
	}

	return ev, nil
}

// GetEvent retrieves one event by id.
func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (*models.IntegrationEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM integration_events WHERE id = $1`, eventColumns)

	ev, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// ListEvents retrieves events for the operator surface, newest first.
func (r *PostgresRepository) ListEvents(ctx context.Context, f models.EventFilter) ([]*models.IntegrationEvent, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if f.IntegrationID != "" {
		whereClause += fmt.Sprintf(" AND integration_id = $%d", argPos)
		args = append(args, f.IntegrationID)
		argPos++
	}
	if f.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, f.Status)
		argPos++
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf(`
		SELECT %s FROM integration_events
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, eventColumns, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*models.IntegrationEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ExistingIdempotencyKeys returns which of the given keys already have rows.
// Callers chunk the key list; the query itself is a single ANY match.
func (r *PostgresRepository) ExistingIdempotencyKeys(ctx context.Context, integrationID string, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}

	query := `
		SELECT idempotency_key FROM integration_events
		WHERE integration_id = $1 AND idempotency_key = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, integrationID, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency keys: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan idempotency key: %w", err)
		}
		existing[key] = true
	}
	return existing, rows.Err()
}

// ClaimPendingEvents transitions up to limit pending events to processing
// and returns them. A crash after the claim leaves rows in processing; they
// stay there until an operator intervenes.
func (r *PostgresRepository) ClaimPendingEvents(ctx context.Context, limit int) ([]*models.IntegrationEvent, error) {
	query := fmt.Sprintf(`
		UPDATE integration_events SET status = 'processing'
		WHERE id IN (
			SELECT id FROM integration_events
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
		)
		AND status = 'pending'
		RETURNING %s
	`, eventColumns)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}
	defer rows.Close()

	events := []*models.IntegrationEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UpdateEventStatus sets an event's status and appends log lines.
func (r *PostgresRepository) UpdateEventStatus(ctx context.Context, id string, status models.EventStatus, logLines ...string) error {
	appended, err := json.Marshal(emptyIfNil(logLines))
	if err != nil {
		return fmt.Errorf("failed to encode log lines: %w", err)
	}

	query := `
		UPDATE integration_events
		SET status = $2, processing_log = processing_log || $3::jsonb
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, status, appended)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SetEventMapped stores the mapping result on the event row for audit.
func (r *PostgresRepository) SetEventMapped(ctx context.Context, id string, mapped map[string]any) error {
	data, err := json.Marshal(mapped)
	if err != nil {
		return fmt.Errorf("failed to encode mapped fields: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE integration_events SET mapped_fields = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("failed to set mapped fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ListActiveTriggers retrieves active triggers for an integration in
// creation order.
func (r *PostgresRepository) ListActiveTriggers(ctx context.Context, integrationID string) ([]*models.InboundTrigger, error) {
	query := `
		SELECT id, integration_id, external_pipeline_id, external_stage_id,
		       entity_types, action_type, is_active
		FROM inbound_triggers
		WHERE integration_id = $1 AND is_active
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	triggers := []*models.InboundTrigger{}
	for rows.Next() {
		tr := &models.InboundTrigger{}
		var entityTypes []byte
		if err := rows.Scan(
			&tr.ID, &tr.IntegrationID, &tr.ExternalPipelineID, &tr.ExternalStageID,
			&entityTypes, &tr.ActionType, &tr.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		if err := json.Unmarshal(entityTypes, &tr.EntityTypes); err != nil {
			return nil, fmt.Errorf("failed to decode entity types: %w", err)
		}
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}

// ListActiveFieldMaps retrieves active mapping rows for one direction.
func (r *PostgresRepository) ListActiveFieldMaps(ctx context.Context, integrationID string, direction models.Direction) ([]*models.FieldMap, error) {
	query := `
		SELECT id, integration_id, direction, local_field_key, external_field_id,
		       external_field_name, section, transforms, sync_always, is_active
		FROM field_maps
		WHERE integration_id = $1 AND direction = $2 AND is_active
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, integrationID, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list field maps: %w", err)
	}
	defer rows.Close()

	maps := []*models.FieldMap{}
	for rows.Next() {
		fm := &models.FieldMap{}
		var transforms []byte
		if err := rows.Scan(
			&fm.ID, &fm.IntegrationID, &fm.Direction, &fm.LocalFieldKey, &fm.ExternalFieldID,
			&fm.ExternalFieldName, &fm.Section, &transforms, &fm.SyncAlways, &fm.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan field map: %w", err)
		}
		if err := json.Unmarshal(transforms, &fm.Transforms); err != nil {
			return nil, fmt.Errorf("failed to decode transforms: %w", err)
		}
		maps = append(maps, fm)
	}
	return maps, rows.Err()
}

// GetSettings reads the flag rows into a snapshot, applying defaults for
// absent keys.
func (r *PostgresRepository) GetSettings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()

	rows, err := r.pool.Query(ctx, `SELECT key, value FROM integration_settings`)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("failed to scan setting: %w", err)
		}
		enabled := value == "true" || value == "1"
		switch key {
		case models.SettingShadowMode:
			settings.ShadowModeEnabled = enabled
		case models.SettingWriteMode:
			settings.WriteModeEnabled = enabled
		case models.SettingInboundIngest:
			settings.InboundIngestEnabled = enabled
		}
	}
	return settings, rows.Err()
}

// EnqueueOutbound appends one delivery to the outbound queue.
func (r *PostgresRepository) EnqueueOutbound(ctx context.Context, item *models.OutboundQueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	logLines, err := json.Marshal(emptyIfNil(item.ProcessingLog))
	if err != nil {
		return fmt.Errorf("failed to encode processing log: %w", err)
	}

	query := `
		INSERT INTO outbound_queue
			(id, card_id, integration_id, external_id, event_type, payload,
			 status, attempts, next_retry_at, last_response, processing_log, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.pool.Exec(ctx, query,
		item.ID, item.CardID, item.IntegrationID, item.ExternalID, item.EventType, payload,
		item.Status, item.Attempts, item.NextRetryAt, item.LastResponse, logLines, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbound item: %w", err)
	}
	return nil
}

const outboundColumns = `
	id, card_id, integration_id, external_id, event_type, payload,
	status, attempts, next_retry_at, last_response, processing_log, created_at
`

func scanOutbound(row pgx.Row) (*models.OutboundQueueItem, error) {
	item := &models.OutboundQueueItem{}
	var payload, logLines []byte
	err := row.Scan(
		&item.ID, &item.CardID, &item.IntegrationID, &item.ExternalID, &item.EventType, &payload,
		&item.Status, &item.Attempts, &item.NextRetryAt, &item.LastResponse, &logLines, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := json.Unmarshal(logLines, &item.ProcessingLog); err != nil {
		return nil, fmt.Errorf("failed to decode processing log: %w", err)
	}
	return item, nil
}

// GetOutbound retrieves one queue item by id.
func (r *PostgresRepository) GetOutbound(ctx context.Context, id string) (*models.OutboundQueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM outbound_queue WHERE id = $1`, outboundColumns)

	item, err := scanOutbound(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutboundNotFound
		}
		return nil, fmt.Errorf("failed to get outbound item: %w", err)
	}
	return item, nil
}

// ClaimOutboundPending transitions up to limit due pending items to
// processing, oldest first, and returns them.
func (r *PostgresRepository) ClaimOutboundPending(ctx context.Context, limit int, now time.Time) ([]*models.OutboundQueueItem, error) {
	query := fmt.Sprintf(`
		UPDATE outbound_queue SET status = 'processing'
		WHERE id IN (
			SELECT id FROM outbound_queue
			WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $2)
			ORDER BY created_at
			LIMIT $1
		)
		AND status = 'pending'
		RETURNING %s
	`, outboundColumns)

	rows, err := r.pool.Query(ctx, query, limit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbound items: %w", err)
	}
	defer rows.Close()

	items := []*models.OutboundQueueItem{}
	for rows.Next() {
		item, err := scanOutbound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbound item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountOutboundPending counts rows awaiting dispatch.
func (r *PostgresRepository) CountOutboundPending(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbound_queue WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbound queue: %w", err)
	}
	return count, nil
}

// MarkOutboundSent finishes an item terminally, retaining the raw provider
// response for audit.
func (r *PostgresRepository) MarkOutboundSent(ctx context.Context, id string, response string) error {
	logLine, _ := json.Marshal([]string{"delivered to external CRM"})

	query := `
		UPDATE outbound_queue
		SET status = 'sent', last_response = $2, next_retry_at = NULL,
		    processing_log = processing_log || $3::jsonb
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, response, logLine)
	if err != nil {
		return fmt.Errorf("failed to mark outbound sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboundNotFound
	}
	return nil
}

// MarkOutboundRetry returns an item to pending with its next retry time.
func (r *PostgresRepository) MarkOutboundRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time, logLine string) error {
	appended, _ := json.Marshal([]string{logLine})

	query := `
		UPDATE outbound_queue
		SET status = 'pending', attempts = $2, next_retry_at = $3,
		    processing_log = processing_log || $4::jsonb
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, attempts, nextRetryAt, appended)
	if err != nil {
		return fmt.Errorf("failed to mark outbound retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboundNotFound
	}
	return nil
}

// MarkOutboundFailed finishes an item terminally after exhausting attempts.
func (r *PostgresRepository) MarkOutboundFailed(ctx context.Context, id string, attempts int, logLine string) error {
	appended, _ := json.Marshal([]string{logLine})

	query := `
		UPDATE outbound_queue
		SET status = 'failed', attempts = $2, next_retry_at = NULL,
		    processing_log = processing_log || $3::jsonb
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, attempts, appended)
	if err != nil {
		return fmt.Errorf("failed to mark outbound failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboundNotFound
	}
	return nil
}

// UpsertCard merges mapped fields into the card scoped by the
// (integration_id, external_id) composite.
func (r *PostgresRepository) UpsertCard(ctx context.Context, integrationID, externalID string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode card fields: %w", err)
	}

	query := `
		INSERT INTO cards (id, integration_id, external_id, fields, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now())
		ON CONFLICT (integration_id, external_id)
		DO UPDATE SET fields = cards.fields || EXCLUDED.fields, updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, integrationID, externalID, data); err != nil {
		return fmt.Errorf("failed to upsert card: %w", err)
	}
	return nil
}

// GetCard retrieves one card by its external composite key.
func (r *PostgresRepository) GetCard(ctx context.Context, integrationID, externalID string) (*models.Card, error) {
	query := `
		SELECT id, integration_id, external_id, fields, updated_at
		FROM cards
		WHERE integration_id = $1 AND external_id = $2
	`

	c := &models.Card{}
	var fields []byte
	err := r.pool.QueryRow(ctx, query, integrationID, externalID).Scan(
		&c.ID, &c.IntegrationID, &c.ExternalID, &fields, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	if err := json.Unmarshal(fields, &c.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode card fields: %w", err)
	}
	return c, nil
}

func emptyIfNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
