package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripdesk/syncbridge/internal/crm"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/repository"
)

// fakeCRM serves the deal-list, deal and contact endpoints over a fixed set
// of deals.
type fakeCRM struct {
	deals []map[string]any
}

func (f *fakeCRM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/3/deals":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + limit
		if end > len(f.deals) {
			end = len(f.deals)
		}
		page := []map[string]any{}
		if offset < len(f.deals) {
			page = f.deals[offset:end]
		}
		json.NewEncoder(w).Encode(map[string]any{
			"deals": page,
			"meta":  map[string]any{"total": strconv.Itoa(len(f.deals))},
		})
	case strings.HasPrefix(r.URL.Path, "/api/3/deals/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/3/deals/")
		for _, d := range f.deals {
			if d["id"] == id {
				json.NewEncoder(w).Encode(map[string]any{"deal": d})
				return
			}
		}
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	case strings.HasPrefix(r.URL.Path, "/api/3/contacts/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/3/contacts/")
		json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]any{"id": id, "email": "ana@example.com", "phone": "+5511999990000"},
		})
	default:
		http.Error(w, `{"message":"unexpected path"}`, http.StatusNotFound)
	}
}

func fakeDeals(n int) []map[string]any {
	deals := make([]map[string]any, n)
	for i := range deals {
		deals[i] = map[string]any{
			"id":      fmt.Sprintf("deal-%d", i+1),
			"group":   "8",
			"stage":   "43",
			"title":   fmt.Sprintf("Trip booking %d", i+1),
			"contact": fmt.Sprintf("contact-%d", i+1),
		}
	}
	return deals
}

func newPollerFixture(t *testing.T, deals []map[string]any, pageSize, maxPages, chunkSize int) (*Poller, *repository.InMemoryRepository) {
	t.Helper()
	srv := httptest.NewServer(&fakeCRM{deals: deals})
	t.Cleanup(srv.Close)

	repo := repository.NewInMemoryRepository()
	repo.AddPlatform(&models.Platform{
		ID:            "plat-ac",
		IntegrationID: "int-1",
		Provider:      "activecampaign",
		IsActive:      true,
	})
	client := crm.New(srv.URL, "test-token", 2*time.Second)
	return NewPoller(repo, client, pageSize, maxPages, chunkSize), repo
}

func TestPollPaginatesThroughPipeline(t *testing.T) {
	poller, repo := newPollerFixture(t, fakeDeals(5), 2, 10, 2)

	result, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	require.NoError(t, err)

	assert.Equal(t, 5, result.DealsFetched)
	assert.Equal(t, 5, result.NewEventsCreated)
	assert.Equal(t, 0, result.AlreadySynced)
	assert.Empty(t, result.Error)

	events, err := repo.ListEvents(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, "activecampaign", ev.Source)
		assert.Equal(t, models.EventPending, ev.Status)
		assert.Equal(t, "8", ev.Payload["pipeline_id"])
		assert.Equal(t, "ana@example.com", ev.Payload["contact_email"])
	}
}

func TestPollMaxPagesBoundsTheRun(t *testing.T) {
	poller, _ := newPollerFixture(t, fakeDeals(50), 5, 3, 100)

	result, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	require.NoError(t, err)
	assert.Equal(t, 15, result.DealsFetched)
}

func TestPollLimitTruncatesResults(t *testing.T) {
	poller, _ := newPollerFixture(t, fakeDeals(10), 4, 10, 100)

	result, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8", Limit: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, result.DealsFetched)
}

func TestPollSecondRunSeesExistingKeys(t *testing.T) {
	poller, _ := newPollerFixture(t, fakeDeals(4), 10, 10, 2)

	first, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	require.NoError(t, err)
	require.Equal(t, 4, first.NewEventsCreated)

	second, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	require.NoError(t, err)
	assert.Equal(t, 4, second.DealsFetched)
	assert.Equal(t, 4, second.AlreadySynced)
	assert.Equal(t, 0, second.NewEventsCreated)
}

func TestPollForceUpdateCreatesFreshRows(t *testing.T) {
	poller, repo := newPollerFixture(t, fakeDeals(3), 10, 10, 10)

	_, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	require.NoError(t, err)

	forced, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8", ForceUpdate: true})
	require.NoError(t, err)
	assert.Equal(t, 3, forced.NewEventsCreated, "salted keys bypass the existence check")

	events, err := repo.ListEvents(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 6)
}

func TestPollSingleDeal(t *testing.T) {
	poller, repo := newPollerFixture(t, fakeDeals(3), 10, 10, 10)

	result, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8", DealID: "deal-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DealsFetched)
	assert.Equal(t, 1, result.NewEventsCreated)

	events, err := repo.ListEvents(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "deal-2", events[0].ExternalID)
}

func TestPollInactivePlatform(t *testing.T) {
	poller, repo := newPollerFixture(t, fakeDeals(1), 10, 10, 10)
	repo.AddPlatform(&models.Platform{
		ID:            "plat-ac",
		IntegrationID: "int-1",
		Provider:      "activecampaign",
		IsActive:      false,
	})

	_, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	assert.Error(t, err)
}

// flakyKeysRepo fails the first existence check to exercise the
// continue-on-chunk-error policy.
type flakyKeysRepo struct {
	*repository.InMemoryRepository
	failures int
}

func (r *flakyKeysRepo) ExistingIdempotencyKeys(ctx context.Context, integrationID string, keys []string) (map[string]bool, error) {
	if r.failures > 0 {
		r.failures--
		return nil, fmt.Errorf("simulated store outage")
	}
	return r.InMemoryRepository.ExistingIdempotencyKeys(ctx, integrationID, keys)
}

func TestPollChunkFailureDoesNotAbortRun(t *testing.T) {
	srv := httptest.NewServer(&fakeCRM{deals: fakeDeals(4)})
	t.Cleanup(srv.Close)

	base := repository.NewInMemoryRepository()
	base.AddPlatform(&models.Platform{
		ID: "plat-ac", IntegrationID: "int-1", Provider: "activecampaign", IsActive: true,
	})
	repo := &flakyKeysRepo{InMemoryRepository: base, failures: 1}
	client := crm.New(srv.URL, "test-token", 2*time.Second)
	poller := NewPoller(repo, client, 10, 10, 2)

	result, err := poller.Poll(context.Background(), &models.PollRequest{PipelineID: "8"})
	require.NoError(t, err)

	// First chunk of two lost to the outage, second chunk lands.
	assert.Equal(t, 4, result.DealsFetched)
	assert.Equal(t, 2, result.NewEventsCreated)
	assert.Contains(t, result.Error, "simulated store outage")
}
