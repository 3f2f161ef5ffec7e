// Package client is a thin HTTP client for the syncbridge API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	baseURL    string
	syncSecret string
	httpClient *http.Client
}

func New(baseURL, syncSecret string) *Client {
	return &Client{
		baseURL:    baseURL,
		syncSecret: syncSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Event mirrors the server's event resource; payload and mapped fields stay
// raw so the CLI renders whatever shape the server sends.
type Event struct {
	ID             string          `json:"id"`
	IntegrationID  string          `json:"integration_id"`
	Source         string          `json:"source"`
	IdempotencyKey string          `json:"idempotency_key"`
	EntityType     string          `json:"entity_type"`
	EventType      string          `json:"event_type"`
	ExternalID     string          `json:"external_id"`
	Payload        json.RawMessage `json:"payload"`
	MappedFields   json.RawMessage `json:"mapped_fields,omitempty"`
	Status         string          `json:"status"`
	ProcessingLog  []string        `json:"processing_log"`
	CreatedAt      time.Time       `json:"created_at"`
}

type EventList struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

type IngestResult struct {
	EventsReceived   int      `json:"eventsReceived"`
	EventsInserted   int      `json:"eventsInserted"`
	EventsDuplicated int      `json:"eventsDuplicated"`
	EventIDs         []string `json:"eventIds"`
	Errors           []string `json:"errors"`
}

type ProcessResult struct {
	Processed int `json:"processed"`
	Results   []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"results"`
}

type DispatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Results   []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"results"`
}

type PollResult struct {
	PipelineID       string `json:"pipelineId"`
	DealsFetched     int    `json:"dealsFetched"`
	AlreadySynced    int    `json:"alreadySynced"`
	NewEventsCreated int    `json:"newEventsCreated"`
	Error            string `json:"error,omitempty"`
}

func (c *Client) do(method, path string, header http.Header, body []byte, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) Ingest(provider string, payload []byte) (*IngestResult, error) {
	var result IngestResult
	path := "/ingest?provider=" + url.QueryEscape(provider)
	if err := c.do(http.MethodPost, path, nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListEvents(status, integrationID string, limit int) (*EventList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if integrationID != "" {
		q.Set("integrationId", integrationID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list EventList
	if err := c.do(http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetEvent(id string) (*Event, error) {
	var ev Event
	if err := c.do(http.MethodGet, "/events/"+url.PathEscape(id), nil, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) ReprocessEvent(id string) error {
	return c.do(http.MethodPost, "/events/"+url.PathEscape(id)+"/reprocess", nil, nil, nil)
}

func (c *Client) Process() (*ProcessResult, error) {
	var result ProcessResult
	if err := c.do(http.MethodPost, "/events/process", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Dispatch() (*DispatchResult, error) {
	var result DispatchResult
	if err := c.do(http.MethodPost, "/outbound/dispatch", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Poll(pipelineID, dealID string, limit int, forceUpdate bool) (*PollResult, error) {
	body, err := json.Marshal(map[string]any{
		"pipelineId":  pipelineID,
		"dealId":      dealID,
		"limit":       limit,
		"forceUpdate": forceUpdate,
	})
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("X-Sync-Secret", c.syncSecret)

	var result PollResult
	if err := c.do(http.MethodPost, "/poll", header, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
