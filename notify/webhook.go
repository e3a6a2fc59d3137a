package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// WebhookDeliverer posts resolved messages as JSON to an HTTP endpoint.
// Transport errors and 5xx responses classify as transient so the
// scheduler retries them with backoff; 4xx responses are permanent.
type WebhookDeliverer struct {
	url  string
	http *http.Client
}

// WebhookOptions configures the webhook deliverer.
type WebhookOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewWebhookDeliverer constructs a deliverer posting to url.
func NewWebhookDeliverer(url string, optFns ...func(o *WebhookOptions)) *WebhookDeliverer {
	opts := WebhookOptions{Timeout: 15 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &WebhookDeliverer{url: url, http: opts.HTTPClient}
}

type webhookPayload struct {
	LeadID  string `json:"lead_id"`
	Email   string `json:"email"`
	Kind    string `json:"kind"`
	Channel string `json:"channel,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Deliver posts the message.
func (d *WebhookDeliverer) Deliver(ctx context.Context, del core.Delivery) error {
	payload, err := json.Marshal(webhookPayload{
		LeadID:  del.Lead.ID,
		Email:   del.Lead.Email,
		Kind:    string(del.Action.Kind),
		Channel: del.Channel,
		Subject: del.Subject,
		Body:    del.Body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return core.Transient("notify.webhook", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return core.Transient("notify.webhook", fmt.Errorf("unexpected status %s", resp.Status))
	default:
		return fmt.Errorf("webhook delivery refused: %s", resp.Status)
	}
}

// Interface compliance (compile-time assertion)
var _ core.Deliverer = (*WebhookDeliverer)(nil)
