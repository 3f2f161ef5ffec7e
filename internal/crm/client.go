// Package crm talks to the external CRM's REST API: paginated deal listing
// for reconciliation and single-resource mutations for outbound dispatch.
// Requests authenticate with a token header and carry their own timeout.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Deal is the subset of an external deal the engine uses. Raw retains the
// full decoded resource for payload construction.
type Deal struct {
	ID         string
	PipelineID string
	StageID    string
	Title      string
	ContactID  string
	Raw        map[string]any
}

// Contact enriches a deal with its primary contact.
type Contact struct {
	ID    string
	Email string
	Phone string
	Raw   map[string]any
}

// Deal status codes on the external API.
const (
	StatusOpen = 0
	StatusWon  = 1
	StatusLost = 2
)

// Client is a thin HTTP client for the external CRM.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. The timeout bounds every request end to end.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError carries the status and a response excerpt for the processing log.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api returned %d: %s", e.StatusCode, e.Body)
}

func excerpt(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Api-Token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read crm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: excerpt(data)}
	}
	return data, nil
}

func decodeDeal(raw map[string]any) Deal {
	d := Deal{Raw: raw}
	if v, ok := raw["id"]; ok {
		d.ID = toString(v)
	}
	if v, ok := raw["group"]; ok {
		d.PipelineID = toString(v)
	}
	if v, ok := raw["stage"]; ok {
		d.StageID = toString(v)
	}
	if v, ok := raw["title"]; ok {
		d.Title = toString(v)
	}
	if v, ok := raw["contact"]; ok {
		d.ContactID = toString(v)
	}
	return d
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ListDeals pages through the deals of one pipeline. total is the provider's
// reported total across all pages.
func (c *Client) ListDeals(ctx context.Context, pipelineID string, limit, offset int) ([]Deal, int, error) {
	query := url.Values{}
	query.Set("filters[group]", pipelineID)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	data, err := c.do(ctx, http.MethodGet, "/api/3/deals", query, nil)
	if err != nil {
		return nil, 0, err
	}

	var decoded struct {
		Deals []map[string]any `json:"deals"`
		Meta  struct {
			Total string `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, 0, fmt.Errorf("decode deals list: %w", err)
	}

	deals := make([]Deal, 0, len(decoded.Deals))
	for _, raw := range decoded.Deals {
		deals = append(deals, decodeDeal(raw))
	}

	total, _ := strconv.Atoi(decoded.Meta.Total)
	return deals, total, nil
}

// GetDeal fetches a single deal by its external id.
func (c *Client) GetDeal(ctx context.Context, id string) (*Deal, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/3/deals/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Deal map[string]any `json:"deal"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode deal: %w", err)
	}
	deal := decodeDeal(decoded.Deal)
	return &deal, nil
}

// GetContact fetches a contact for deal enrichment.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/3/contacts/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Contact map[string]any `json:"contact"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}

	contact := Contact{Raw: decoded.Contact}
	if v, ok := decoded.Contact["id"]; ok {
		contact.ID = toString(v)
	}
	if v, ok := decoded.Contact["email"]; ok {
		contact.Email = toString(v)
	}
	if v, ok := decoded.Contact["phone"]; ok {
		contact.Phone = toString(v)
	}
	return &contact, nil
}

// UpdateDealStage moves a deal to another stage. The raw response body is
// returned for the outbound item's audit trail.
func (c *Client) UpdateDealStage(ctx context.Context, dealID, stageID string) (string, error) {
	payload := map[string]any{"deal": map[string]any{"stage": stageID}}
	data, err := c.do(ctx, http.MethodPut, "/api/3/deals/"+url.PathEscape(dealID), nil, payload)
	if err != nil {
		return "", err
	}
	return excerpt(data), nil
}

// UpdateDealFields writes custom field values on a deal.
func (c *Client) UpdateDealFields(ctx context.Context, dealID string, fields map[string]any) (string, error) {
	fieldValues := make([]map[string]any, 0, len(fields))
	for fieldID, value := range fields {
		fieldValues = append(fieldValues, map[string]any{
			"customFieldId": fieldID,
			"fieldValue":    value,
		})
	}
	payload := map[string]any{"deal": map[string]any{"fields": fieldValues}}

	data, err := c.do(ctx, http.MethodPut, "/api/3/deals/"+url.PathEscape(dealID), nil, payload)
	if err != nil {
		return "", err
	}
	return excerpt(data), nil
}

// UpdateDealStatus marks a deal won or lost.
func (c *Client) UpdateDealStatus(ctx context.Context, dealID string, status int) (string, error) {
	payload := map[string]any{"deal": map[string]any{"status": status}}
	data, err := c.do(ctx, http.MethodPut, "/api/3/deals/"+url.PathEscape(dealID), nil, payload)
	if err != nil {
		return "", err
	}
	return excerpt(data), nil
}
