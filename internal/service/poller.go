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
	"github.com/tripdesk/syncbridge/internal/repository"
)

// crmProvider names the platform row the poller reconciles against.
const crmProvider = "activecampaign"

// Poller pulls deals straight from the external CRM to backfill the event
// store when webhook delivery lagged or dropped. It writes the same event
// rows that ingress would have, so the downstream pipeline is identical.
type Poller struct {
	repo      repository.Repository
	crm       *crm.Client
	pageSize  int
	maxPages  int
	chunkSize int
}

// NewPoller wires the pull-based reconciler.
func NewPoller(repo repository.Repository, client *crm.Client, pageSize, maxPages, chunkSize int) *Poller {
	return &Poller{
		repo:      repo,
		crm:       client,
		pageSize:  pageSize,
		maxPages:  maxPages,
		chunkSize: chunkSize,
	}
}

// Poll reconciles one external pipeline. Pagination is bounded by pageSize
// and maxPages so a single run cannot grow without limit; a chunk's insert
// failure is recorded and the run carries on with the next chunk.
func (p *Poller) Poll(ctx context.Context, req *models.PollRequest) (*models.PollResult, error) {
	platform, err := p.repo.GetPlatformByProvider(ctx, crmProvider)
	if err != nil {
		return nil, fmt.Errorf("load %s platform: %w", crmProvider, err)
	}
	if !platform.IsActive {
		return nil, fmt.Errorf("platform %s is inactive", crmProvider)
	}

	result := &models.PollResult{PipelineID: req.PipelineID}

	deals, err := p.fetchDeals(ctx, req)
	if err != nil {
		return nil, err
	}
	result.DealsFetched = len(deals)
	metrics.PollerDealsFetched.Add(float64(len(deals)))
	if len(deals) == 0 {
		return result, nil
	}

	// forceUpdate salts every key with a fresh epoch, so the existence
	// check would never match; skip it and let every deal become a new row.
	forceEpoch := ""
	if req.ForceUpdate {
		forceEpoch = fmt.Sprintf("%d", time.Now().UTC().Unix())
	}

	var lastErr error
	for start := 0; start < len(deals); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(deals) {
			end = len(deals)
		}
		chunk := deals[start:end]

		keys := make([]string, len(chunk))
		for i, d := range chunk {
			keys[i] = pollIdempotencyKey(crmProvider, d.ID, req.PipelineID, forceEpoch)
		}

		existing := map[string]bool{}
		if !req.ForceUpdate {
			existing, err = p.repo.ExistingIdempotencyKeys(ctx, platform.IntegrationID, keys)
			if err != nil {
				lastErr = fmt.Errorf("existence check: %w", err)
				slog.Error("poller chunk existence check failed",
					logging.Pipeline(req.PipelineID), logging.Error(err))
				continue
			}
		}

		for i, d := range chunk {
			if existing[keys[i]] {
				result.AlreadySynced++
				continue
			}
			ev := p.buildEvent(platform, req.PipelineID, keys[i], d)
			inserted, err := p.repo.InsertEvent(ctx, ev)
			if err != nil {
				lastErr = fmt.Errorf("insert deal %s: %w", d.ID, err)
				slog.Error("poller insert failed",
					logging.Pipeline(req.PipelineID),
					slog.String("deal_id", d.ID),
					logging.Error(err))
				continue
			}
			if !inserted {
				result.AlreadySynced++
				continue
			}
			result.NewEventsCreated++
			metrics.EventsIngested.WithLabelValues(crmProvider).Inc()
		}
	}

	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	slog.Info("poll completed",
		logging.Pipeline(req.PipelineID),
		slog.Int("deals_fetched", result.DealsFetched),
		slog.Int("already_synced", result.AlreadySynced),
		slog.Int("new_events", result.NewEventsCreated))
	return result, nil
}

// fetchDeals pages through the pipeline's deals, or fetches one deal when
// the request names it. Each deal is enriched with its primary contact;
// a contact fetch failure degrades to an unenriched deal rather than
// aborting the run.
func (p *Poller) fetchDeals(ctx context.Context, req *models.PollRequest) ([]crm.Deal, error) {
	if req.DealID != "" {
		deal, err := p.crm.GetDeal(ctx, req.DealID)
		if err != nil {
			return nil, fmt.Errorf("fetch deal %s: %w", req.DealID, err)
		}
		p.enrich(ctx, deal)
		return []crm.Deal{*deal}, nil
	}

	pageSize := p.pageSize
	if req.Limit > 0 && req.Limit < pageSize {
		pageSize = req.Limit
	}

	var deals []crm.Deal
	for page := 0; page < p.maxPages; page++ {
		batch, total, err := p.crm.ListDeals(ctx, req.PipelineID, pageSize, page*pageSize)
		if err != nil {
			return nil, fmt.Errorf("list deals page %d: %w", page, err)
		}
		for i := range batch {
			p.enrich(ctx, &batch[i])
		}
		deals = append(deals, batch...)

		if req.Limit > 0 && len(deals) >= req.Limit {
			deals = deals[:req.Limit]
			break
		}
		if len(deals) >= total || len(batch) == 0 {
			break
		}
	}
	return deals, nil
}

func (p *Poller) enrich(ctx context.Context, deal *crm.Deal) {
	if deal.ContactID == "" {
		return
	}
	contact, err := p.crm.GetContact(ctx, deal.ContactID)
	if err != nil {
		slog.Warn("contact enrichment failed",
			slog.String("deal_id", deal.ID),
			slog.String("contact_id", deal.ContactID),
			logging.Error(err))
		return
	}
	if deal.Raw == nil {
		deal.Raw = map[string]any{}
	}
	deal.Raw["contact_email"] = contact.Email
	deal.Raw["contact_phone"] = contact.Phone
}

func (p *Poller) buildEvent(platform *models.Platform, pipelineID, key string, d crm.Deal) *models.IntegrationEvent {
	payload := map[string]any{
		"deal_id":     d.ID,
		"pipeline_id": pipelineID,
		"stage_id":    d.StageID,
		"title":       d.Title,
	}
	for k, v := range d.Raw {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}
	return &models.IntegrationEvent{
		ID:             uuid.New().String(),
		IntegrationID:  platform.IntegrationID,
		Source:         crmProvider,
		IdempotencyKey: key,
		EntityType:     "deal",
		EventType:      "deal_synced",
		ExternalID:     d.ID,
		Payload:        payload,
		Status:         models.EventPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// pollIdempotencyKey derives the deterministic key for one polled deal.
// The forceEpoch salt is empty on normal runs.
func pollIdempotencyKey(source, externalID, pipelineID, forceEpoch string) string {
	key := fmt.Sprintf("poll:%s:%s:%s", source, externalID, pipelineID)
	if forceEpoch != "" {
		key += ":" + forceEpoch
	}
	return key
}
