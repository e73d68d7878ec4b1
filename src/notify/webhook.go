package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/outletwatch/telemetry/src/telemetry"
)

// WebhookSink posts alert notifications as JSON to an HTTP endpoint.
type WebhookSink struct {
	url     string
	client  *fasthttp.Client
	timeout time.Duration
}

// WebhookOption configures the webhook sink.
type WebhookOption func(*WebhookSink)

// WithTimeout overrides the per-delivery timeout.
func WithTimeout(d time.Duration) WebhookOption {
	return func(s *WebhookSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClient overrides the HTTP client.
func WithClient(c *fasthttp.Client) WebhookOption {
	return func(s *WebhookSink) {
		if c != nil {
			s.client = c
		}
	}
}

// NewWebhookSink constructs a webhook sink.
func NewWebhookSink(url string, opts ...WebhookOption) (*WebhookSink, error) {
	if url == "" {
		return nil, errors.New("notify: empty webhook url")
	}
	sink := &WebhookSink{
		url:     url,
		client:  &fasthttp.Client{},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink, nil
}

// Deliver posts the alert. A non-2xx response counts as a failure.
func (s *WebhookSink) Deliver(ctx context.Context, alert telemetry.AlertNotification) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return err
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode())
	}
	return nil
}
