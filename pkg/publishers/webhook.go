package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const maxErrorBodyBytes = 512

// EventHeader carries the event id on webhook deliveries so receivers can
// drop duplicates.
const EventHeader = "X-Pingwatch-Event"

// WebhookStatusError reports a webhook that answered with a non-2xx status.
type WebhookStatusError struct {
	StatusCode int
	Body       string
}

func (e *WebhookStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook responded %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook responded %d: %s", e.StatusCode, e.Body)
}

type webhookPublisher struct {
	id     string
	method string
	url    string
	client *resty.Client
	log    Logger
}

func newWebhookPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, cfg.missing()
	}
	client := resty.New().
		SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second).
		SetHeader("User-Agent", "pingwatch").
		SetHeaders(cfg.HTTP.Headers).
		SetHeader("Content-Type", "application/json")

	return &webhookPublisher{
		id:     cfg.ID,
		method: cfg.HTTP.Method,
		url:    cfg.HTTP.URL,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (p *webhookPublisher) ID() string   { return p.id }
func (p *webhookPublisher) Type() string { return TypeHTTP }

func (p *webhookPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader(EventHeader, evt.ID).
		SetBody(evt).
		Execute(p.method, p.url)
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", p.method, p.url, err)
	}
	if !resp.IsSuccess() {
		body := resp.Body()
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return &WebhookStatusError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(body))}
	}
	p.log.DebugObj("event delivered", "webhook_delivery", map[string]any{
		"publisher_id": p.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
