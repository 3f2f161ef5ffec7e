package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripdesk/syncbridge/internal/models"
)

// InMemoryRepository backs the engine for tests and local development.
type InMemoryRepository struct {
	mu        sync.RWMutex
	platforms map[string]*models.Platform // keyed by provider
	events    map[string]*models.IntegrationEvent
	eventKeys map[string]string // integrationID+"\x00"+idempotencyKey -> event id
	triggers  []*models.InboundTrigger
	fieldMaps []*models.FieldMap
	settings  map[string]string
	outbound  map[string]*models.OutboundQueueItem
	cards     map[string]*models.Card // keyed by integrationID+"\x00"+externalID
}

// NewInMemoryRepository creates an empty in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		platforms: make(map[string]*models.Platform),
		events:    make(map[string]*models.IntegrationEvent),
		eventKeys: make(map[string]string),
		settings:  make(map[string]string),
		outbound:  make(map[string]*models.OutboundQueueItem),
		cards:     make(map[string]*models.Card),
	}
}

func compositeKey(a, b string) string { return a + "\x00" + b }

// AddPlatform seeds a platform row.
func (r *InMemoryRepository) AddPlatform(p *models.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[p.Provider] = p
}

// AddTrigger seeds a trigger rule.
func (r *InMemoryRepository) AddTrigger(tr *models.InboundTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, tr)
}

// AddFieldMap seeds a field mapping row.
func (r *InMemoryRepository) AddFieldMap(fm *models.FieldMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fieldMaps = append(r.fieldMaps, fm)
}

// SetSetting seeds one settings row.
func (r *InMemoryRepository) SetSetting(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
}

func (r *InMemoryRepository) GetPlatformByProvider(_ context.Context, provider string) (*models.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.platforms[provider]
	if !exists {
		return nil, ErrPlatformNotFound
	}
	return p, nil
}

func (r *InMemoryRepository) TouchPlatformLastEvent(_ context.Context, platformID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.platforms {
		if p.ID == platformID {
			t := at
			p.LastEventAt = &t
			return nil
		}
	}
	return ErrPlatformNotFound
}

func (r *InMemoryRepository) InsertEvent(_ context.Context, ev *models.IntegrationEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := compositeKey(ev.IntegrationID, ev.IdempotencyKey)
	if _, exists := r.eventKeys[key]; exists {
		return false, nil
	}

	clone := *ev
	if clone.ProcessingLog == nil {
		clone.ProcessingLog = []string{}
	}
	r.events[ev.ID] = &clone
	r.eventKeys[key] = ev.ID
	return true, nil
}

func (r *InMemoryRepository) GetEvent(_ context.Context, id string) (*models.IntegrationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, exists := r.events[id]
	if !exists {
		return nil, ErrEventNotFound
	}
	clone := *ev
	return &clone, nil
}

func (r *InMemoryRepository) ListEvents(_ context.Context, f models.EventFilter) ([]*models.IntegrationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := []*models.IntegrationEvent{}
	for _, ev := range r.events {
		if f.IntegrationID != "" && ev.IntegrationID != f.IntegrationID {
			continue
		}
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		clone := *ev
		events = append(events, &clone)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(events) {
			return []*models.IntegrationEvent{}, nil
		}
		events = events[f.Offset:]
	}
	if f.Limit > 0 && len(events) > f.Limit {
		events = events[:f.Limit]
	}
	return events, nil
}

func (r *InMemoryRepository) ExistingIdempotencyKeys(_ context.Context, integrationID string, keys []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing := make(map[string]bool)
	for _, k := range keys {
		if _, ok := r.eventKeys[compositeKey(integrationID, k)]; ok {
			existing[k] = true
		}
	}
	return existing, nil
}

func (r *InMemoryRepository) ClaimPendingEvents(_ context.Context, limit int) ([]*models.IntegrationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := []*models.IntegrationEvent{}
	for _, ev := range r.events {
		if ev.Status == models.EventPending {
			pending = append(pending, ev)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := []*models.IntegrationEvent{}
	for _, ev := range pending {
		ev.Status = models.EventProcessing
		clone := *ev
		claimed = append(claimed, &clone)
	}
	return claimed, nil
}

func (r *InMemoryRepository) UpdateEventStatus(_ context.Context, id string, status models.EventStatus, logLines ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, exists := r.events[id]
	if !exists {
		return ErrEventNotFound
	}
	ev.Status = status
	ev.ProcessingLog = append(ev.ProcessingLog, logLines...)
	return nil
}

func (r *InMemoryRepository) SetEventMapped(_ context.Context, id string, mapped map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, exists := r.events[id]
	if !exists {
		return ErrEventNotFound
	}
	ev.MappedFields = mapped
	return nil
}

func (r *InMemoryRepository) ListActiveTriggers(_ context.Context, integrationID string) ([]*models.InboundTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	triggers := []*models.InboundTrigger{}
	for _, tr := range r.triggers {
		if tr.IntegrationID == integrationID && tr.IsActive {
			triggers = append(triggers, tr)
		}
	}
	return triggers, nil
}

func (r *InMemoryRepository) ListActiveFieldMaps(_ context.Context, integrationID string, direction models.Direction) ([]*models.FieldMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maps := []*models.FieldMap{}
	for _, fm := range r.fieldMaps {
		if fm.IntegrationID == integrationID && fm.Direction == direction && fm.IsActive {
			maps = append(maps, fm)
		}
	}
	return maps, nil
}

func (r *InMemoryRepository) GetSettings(_ context.Context) (models.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings := models.DefaultSettings()
	for key, value := range r.settings {
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
	return settings, nil
}

func (r *InMemoryRepository) EnqueueOutbound(_ context.Context, item *models.OutboundQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *item
	if clone.ID == "" {
		clone.ID = uuid.New().String()
	}
	if clone.ProcessingLog == nil {
		clone.ProcessingLog = []string{}
	}
	r.outbound[clone.ID] = &clone
	return nil
}

func (r *InMemoryRepository) GetOutbound(_ context.Context, id string) (*models.OutboundQueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.outbound[id]
	if !exists {
		return nil, ErrOutboundNotFound
	}
	clone := *item
	return &clone, nil
}

func (r *InMemoryRepository) ClaimOutboundPending(_ context.Context, limit int, now time.Time) ([]*models.OutboundQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := []*models.OutboundQueueItem{}
	for _, item := range r.outbound {
		if item.Status != models.OutboundPending {
			continue
		}
		if item.NextRetryAt != nil && item.NextRetryAt.After(now) {
			continue
		}
		due = append(due, item)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := []*models.OutboundQueueItem{}
	for _, item := range due {
		item.Status = models.OutboundProcessing
		clone := *item
		claimed = append(claimed, &clone)
	}
	return claimed, nil
}

func (r *InMemoryRepository) CountOutboundPending(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, item := range r.outbound {
		if item.Status == models.OutboundPending {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) MarkOutboundSent(_ context.Context, id string, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.outbound[id]
	if !exists {
		return ErrOutboundNotFound
	}
	item.Status = models.OutboundSent
	item.LastResponse = response
	item.NextRetryAt = nil
	item.ProcessingLog = append(item.ProcessingLog, "delivered to external CRM")
	return nil
}

func (r *InMemoryRepository) MarkOutboundRetry(_ context.Context, id string, attempts int, nextRetryAt time.Time, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.outbound[id]
	if !exists {
		return ErrOutboundNotFound
	}
	item.Status = models.OutboundPending
	item.Attempts = attempts
	t := nextRetryAt
	item.NextRetryAt = &t
	item.ProcessingLog = append(item.ProcessingLog, logLine)
	return nil
}

func (r *InMemoryRepository) MarkOutboundFailed(_ context.Context, id string, attempts int, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.outbound[id]
	if !exists {
		return ErrOutboundNotFound
	}
	item.Status = models.OutboundFailed
	item.Attempts = attempts
	item.NextRetryAt = nil
	item.ProcessingLog = append(item.ProcessingLog, logLine)
	return nil
}

func (r *InMemoryRepository) UpsertCard(_ context.Context, integrationID, externalID string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := compositeKey(integrationID, externalID)
	card, exists := r.cards[key]
	if !exists {
		card = &models.Card{
			ID:            uuid.New().String(),
			IntegrationID: integrationID,
			ExternalID:    externalID,
			Fields:        make(map[string]any),
		}
		r.cards[key] = card
	}
	for k, v := range fields {
		card.Fields[k] = v
	}
	card.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) GetCard(_ context.Context, integrationID, externalID string) (*models.Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, exists := r.cards[compositeKey(integrationID, externalID)]
	if !exists {
		return nil, ErrCardNotFound
	}
	clone := *card
	return &clone, nil
}

// CardCount reports how many cards exist; tests use it to prove shadow mode
// wrote nothing.
func (r *InMemoryRepository) CardCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}

func (r *InMemoryRepository) Ping(_ context.Context) error { return nil }
