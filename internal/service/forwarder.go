package service

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tripdesk/syncbridge/internal/logging"
)

// Forwarder relays qualifying inbound payloads to downstream automation
// webhooks. Forwarding is fire-and-forget per destination: a slow or failing
// downstream never blocks or fails the ingestion response.
type Forwarder struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewForwarder builds a forwarder whose calls are bounded by timeout.
func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Forwarder{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// Forward posts body to every URL in the background. Errors are logged and
// dropped; the caller has already answered the provider by the time these
// run.
func (f *Forwarder) Forward(urls []string, body []byte) {
	for _, u := range urls {
		go f.post(u, body)
	}
}

func (f *Forwarder) post(url string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("forward request build failed", slog.String("url", url), logging.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		slog.Warn("forward delivery failed", slog.String("url", url), logging.Error(err))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("forward target rejected payload",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
		)
	}
}
