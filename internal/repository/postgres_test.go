package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tripdesk/syncbridge/internal/models"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations
func setupTestDatabase(t *testing.T) (*PostgresRepository, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("syncbridge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo, err := NewPostgresRepository(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create repository: %v", err)
	}

	cleanup := func() {
		repo.pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return repo, cleanup
}

func runMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrationPath := filepath.Join("..", "..", "migrations", "001_init.up.sql")
	migrationSQL, err := os.ReadFile(migrationPath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

func seedPlatform(t *testing.T, repo *PostgresRepository, provider string, active bool) {
	t.Helper()
	_, err := repo.pool.Exec(context.Background(), `
		INSERT INTO platforms (integration_id, provider, name, is_active)
		VALUES ($1, $2, $3, $4)
	`, "int-1", provider, provider+" test", active)
	if err != nil {
		t.Fatalf("failed to seed platform: %v", err)
	}
}

func makeEvent(key string) *models.IntegrationEvent {
	return &models.IntegrationEvent{
		ID:             uuid.New().String(),
		IntegrationID:  "int-1",
		Source:         "chatpro",
		IdempotencyKey: key,
		EntityType:     "message",
		EventType:      "message_received",
		ExternalID:     "chat-1",
		Payload:        map[string]any{"message_id": key, "text": "olá"},
		Status:         models.EventPending,
		ProcessingLog:  []string{"ingested from provider chatpro"},
		CreatedAt:      time.Now().UTC(),
	}
}

func TestGetPlatformByProvider(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	seedPlatform(t, repo, "chatpro", true)

	p, err := repo.GetPlatformByProvider(ctx, "chatpro")
	if err != nil {
		t.Fatalf("GetPlatformByProvider() error = %v", err)
	}
	if p.IntegrationID != "int-1" || !p.IsActive {
		t.Errorf("unexpected platform: %+v", p)
	}

	if _, err := repo.GetPlatformByProvider(ctx, "nosuch"); !errors.Is(err, ErrPlatformNotFound) {
		t.Errorf("error = %v, want ErrPlatformNotFound", err)
	}
}

func TestInsertEventIdempotency(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	first := makeEvent("dup-key")
	inserted, err := repo.InsertEvent(ctx, first)
	if err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported duplicate")
	}

	second := makeEvent("dup-key")
	inserted, err = repo.InsertEvent(ctx, second)
	if err != nil {
		t.Fatalf("InsertEvent() duplicate error = %v", err)
	}
	if inserted {
		t.Error("duplicate key must not insert a second row")
	}

	stored, err := repo.GetEvent(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if stored.Source != "chatpro" || stored.Payload["message_id"] != "dup-key" {
		t.Errorf("unexpected stored event: %+v", stored)
	}
}

func TestExistingIdempotencyKeys(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	for _, key := range []string{"k1", "k2"} {
		if _, err := repo.InsertEvent(ctx, makeEvent(key)); err != nil {
			t.Fatal(err)
		}
	}

	existing, err := repo.ExistingIdempotencyKeys(ctx, "int-1", []string{"k1", "k2", "k3"})
	if err != nil {
		t.Fatalf("ExistingIdempotencyKeys() error = %v", err)
	}
	if !existing["k1"] || !existing["k2"] || existing["k3"] {
		t.Errorf("existing = %v", existing)
	}

	// Scoped per integration.
	other, err := repo.ExistingIdempotencyKeys(ctx, "int-2", []string{"k1"})
	if err != nil {
		t.Fatal(err)
	}
	if other["k1"] {
		t.Error("key from another integration reported as existing")
	}
}

func TestClaimPendingEvents(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.InsertEvent(ctx, makeEvent(fmt.Sprintf("claim-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := repo.ClaimPendingEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ClaimPendingEvents() error = %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d events, want 2", len(claimed))
	}
	for _, ev := range claimed {
		if ev.Status != models.EventProcessing {
			t.Errorf("claimed event status = %s, want processing", ev.Status)
		}
	}

	// The remaining pending event comes on the next claim; claimed ones do
	// not reappear.
	rest, err := repo.ClaimPendingEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 {
		t.Errorf("second claim returned %d events, want 1", len(rest))
	}
}

func TestUpdateEventStatusAppendsLog(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	ev := makeEvent("log-key")
	if _, err := repo.InsertEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateEventStatus(ctx, ev.ID, models.EventIgnored, "no trigger matches pipeline 8 stage 59; event ignored"); err != nil {
		t.Fatalf("UpdateEventStatus() error = %v", err)
	}

	stored, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.EventIgnored {
		t.Errorf("status = %s, want ignored", stored.Status)
	}
	if len(stored.ProcessingLog) != 2 {
		t.Fatalf("processing log = %v, want ingest line plus diagnostic", stored.ProcessingLog)
	}

	if err := repo.UpdateEventStatus(ctx, uuid.New().String(), models.EventFailed, "x"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("error = %v, want ErrEventNotFound", err)
	}
}

func TestSetEventMapped(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	ev := makeEvent("mapped-key")
	if _, err := repo.InsertEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	if err := repo.SetEventMapped(ctx, ev.ID, map[string]any{"valor_estimado": "21"}); err != nil {
		t.Fatalf("SetEventMapped() error = %v", err)
	}

	stored, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.MappedFields["valor_estimado"] != "21" {
		t.Errorf("mapped fields = %v", stored.MappedFields)
	}
}

func TestTriggersAndFieldMapsFilterInactive(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.pool.Exec(ctx, `
		INSERT INTO inbound_triggers (integration_id, external_pipeline_id, external_stage_id, action_type, is_active)
		VALUES ('int-1', '8', '43', 'allow', TRUE),
		       ('int-1', '8', '44', 'allow', FALSE)
	`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = repo.pool.Exec(ctx, `
		INSERT INTO field_maps (integration_id, direction, local_field_key, external_field_id, transforms, is_active)
		VALUES ('int-1', 'inbound', 'valor_estimado', 'deal.value', '["string"]', TRUE),
		       ('int-1', 'outbound', 'valor_estimado', '17', '[]', TRUE)
	`)
	if err != nil {
		t.Fatal(err)
	}

	triggers, err := repo.ListActiveTriggers(ctx, "int-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(triggers) != 1 || *triggers[0].ExternalStageID != "43" {
		t.Errorf("triggers = %+v", triggers)
	}

	inbound, err := repo.ListActiveFieldMaps(ctx, "int-1", models.DirectionInbound)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbound) != 1 || inbound[0].Transforms[0] != "string" {
		t.Errorf("inbound maps = %+v", inbound)
	}

	outbound, err := repo.ListActiveFieldMaps(ctx, "int-1", models.DirectionOutbound)
	if err != nil {
		t.Fatal(err)
	}
	if len(outbound) != 1 || outbound[0].ExternalFieldID != "17" {
		t.Errorf("outbound maps = %+v", outbound)
	}
}

func TestGetSettings(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	// Defaults with an empty table.
	settings, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if settings.ShadowModeEnabled || !settings.WriteModeEnabled || !settings.InboundIngestEnabled {
		t.Errorf("default settings = %+v", settings)
	}

	_, err = repo.pool.Exec(ctx, `
		INSERT INTO integration_settings (key, value)
		VALUES ('SHADOW_MODE_ENABLED', 'true'), ('WRITE_MODE_ENABLED', 'false')
	`)
	if err != nil {
		t.Fatal(err)
	}

	settings, err = repo.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !settings.ShadowModeEnabled || settings.WriteModeEnabled {
		t.Errorf("settings = %+v", settings)
	}
}

func TestOutboundQueueLifecycle(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	item := &models.OutboundQueueItem{
		ID:            uuid.New().String(),
		CardID:        "card-1",
		IntegrationID: "int-1",
		ExternalID:    "deal-1",
		EventType:     models.OutboundStageChange,
		Payload:       map[string]any{"stage_id": "43"},
		Status:        models.OutboundPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.EnqueueOutbound(ctx, item); err != nil {
		t.Fatalf("EnqueueOutbound() error = %v", err)
	}

	claimed, err := repo.ClaimOutboundPending(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].Status != models.OutboundProcessing {
		t.Fatalf("claimed = %+v", claimed)
	}

	// Retry puts it back pending with a future nextRetryAt; it is not due.
	future := time.Now().UTC().Add(time.Minute)
	if err := repo.MarkOutboundRetry(ctx, item.ID, 1, future, "attempt 1 failed: timeout"); err != nil {
		t.Fatal(err)
	}
	claimed, err = repo.ClaimOutboundPending(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Errorf("future-retry item claimed early: %+v", claimed)
	}

	// Due once now passes nextRetryAt.
	claimed, err = repo.ClaimOutboundPending(ctx, 10, future.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].Attempts != 1 {
		t.Fatalf("claimed = %+v", claimed)
	}

	if err := repo.MarkOutboundSent(ctx, item.ID, `{"deal":{}}`); err != nil {
		t.Fatal(err)
	}
	stored, err := repo.GetOutbound(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.OutboundSent || stored.LastResponse == "" {
		t.Errorf("stored = %+v", stored)
	}

	count, err := repo.CountOutboundPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("pending count = %d, want 0", count)
	}
}

func TestMarkOutboundFailedIsTerminal(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	item := &models.OutboundQueueItem{
		ID:            uuid.New().String(),
		CardID:        "card-1",
		IntegrationID: "int-1",
		ExternalID:    "deal-1",
		EventType:     models.OutboundWon,
		Status:        models.OutboundPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.EnqueueOutbound(ctx, item); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkOutboundFailed(ctx, item.ID, 3, "attempt 3 failed: crm api returned 500"); err != nil {
		t.Fatal(err)
	}

	claimed, err := repo.ClaimOutboundPending(ctx, 10, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Error("terminal failed item was claimed")
	}
}

func TestUpsertCardMergesFields(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.UpsertCard(ctx, "int-1", "deal-1", map[string]any{"valor_estimado": "21"}); err != nil {
		t.Fatalf("UpsertCard() error = %v", err)
	}
	if err := repo.UpsertCard(ctx, "int-1", "deal-1", map[string]any{"origem": "site"}); err != nil {
		t.Fatal(err)
	}

	card, err := repo.GetCard(ctx, "int-1", "deal-1")
	if err != nil {
		t.Fatal(err)
	}
	if card.Fields["valor_estimado"] != "21" || card.Fields["origem"] != "site" {
		t.Errorf("card fields = %v, want merged fields", card.Fields)
	}

	if _, err := repo.GetCard(ctx, "int-1", "deal-2"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("error = %v, want ErrCardNotFound", err)
	}
}
