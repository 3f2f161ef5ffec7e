package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tripdesk/syncbridge/internal/models"
)

func TestInMemoryInsertEventDuplicate(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	ev := &models.IntegrationEvent{
		ID:             uuid.New().String(),
		IntegrationID:  "int-1",
		IdempotencyKey: "k1",
		Status:         models.EventPending,
		CreatedAt:      time.Now(),
	}
	inserted, err := repo.InsertEvent(ctx, ev)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}

	dup := &models.IntegrationEvent{
		ID:             uuid.New().String(),
		IntegrationID:  "int-1",
		IdempotencyKey: "k1",
		Status:         models.EventPending,
		CreatedAt:      time.Now(),
	}
	inserted, err = repo.InsertEvent(ctx, dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate key inserted")
	}

	// Same key under another integration is a distinct row.
	other := &models.IntegrationEvent{
		ID:             uuid.New().String(),
		IntegrationID:  "int-2",
		IdempotencyKey: "k1",
		Status:         models.EventPending,
		CreatedAt:      time.Now(),
	}
	inserted, err = repo.InsertEvent(ctx, other)
	if err != nil || !inserted {
		t.Errorf("cross-integration insert = %v, %v", inserted, err)
	}
}

func TestInMemoryClaimOrdersByCreation(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	ids := make([]string, 3)
	for i := range ids {
		ev := &models.IntegrationEvent{
			ID:             uuid.New().String(),
			IntegrationID:  "int-1",
			IdempotencyKey: uuid.New().String(),
			Status:         models.EventPending,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		ids[i] = ev.ID
		if _, err := repo.InsertEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := repo.ClaimPendingEvents(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 2 || claimed[0].ID != ids[0] || claimed[1].ID != ids[1] {
		t.Errorf("claim order wrong: %v", claimed)
	}
}

func TestInMemoryReturnsClones(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	ev := &models.IntegrationEvent{
		ID:             uuid.New().String(),
		IntegrationID:  "int-1",
		IdempotencyKey: "k1",
		Status:         models.EventPending,
		CreatedAt:      time.Now(),
	}
	if _, err := repo.InsertEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Status = models.EventFailed

	again, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != models.EventPending {
		t.Error("mutating a returned event leaked into the store")
	}
}
