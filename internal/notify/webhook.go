package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

// WebhookPayload is the normalized alert body POSTed to the webhook.
type WebhookPayload struct {
	CollectionID string    `json:"collection_id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	TriggeredAt  time.Time `json:"triggered_at"`
}

// DeliveryError is a failed webhook POST.
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery failed with status %d", e.StatusCode)
}

// Webhook delivers alerts by POSTing JSON to a configured URL, retrying
// transient failures with jittered exponential backoff.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// NewWebhook creates a webhook channel.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WithRetries sets the retry configuration. A non-positive backoff keeps
// the default; the jitter math needs a positive base.
func WithRetries(max int, backoff time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.maxRetries = max
		if backoff > 0 {
			w.retryBackoff = backoff
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		w.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.httpClient = hc
	}
}

// Name identifies the channel in logs.
func (w *Webhook) Name() string { return "webhook" }

// Send delivers one alert, retrying up to maxRetries with exponential
// backoff. Returns the last error once retries are exhausted.
func (w *Webhook) Send(ctx context.Context, a model.Alert) error {
	body, err := json.Marshal(WebhookPayload{
		CollectionID: a.CollectionID,
		Type:         string(a.Type),
		Severity:     string(a.Severity),
		Message:      a.Message,
		TriggeredAt:  a.TriggeredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	backoff := w.retryBackoff

	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			w.logger.Debug("retrying webhook delivery",
				"attempt", attempt,
				"backoff", jitter,
				"alert", a.ID,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		if lastErr = w.post(ctx, body); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}
