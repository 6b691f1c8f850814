package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/domain"
)

const maxBodyBytes = 4 << 20

// Client posts chat payloads to the workflow webhook.
// Deadlines come from the caller's context, the http.Client itself has none.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
}

func NewClient(url, userAgent string) *Client {
	return &Client{
		url:        url,
		userAgent:  userAgent,
		httpClient: &http.Client{},
	}
}

// WithHTTPClient swaps the underlying transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Post(ctx context.Context, payload domain.WebhookPayload) (*domain.WebhookResponse, error) {
	log := logger.FromContext(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewRelayError(domain.KindInternal, 0, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewRelayError(domain.KindInternal, 0, fmt.Errorf("build request: %w", err))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	log.Debug("posting to webhook",
		"session_id", payload.SessionID,
		"action", payload.Action,
		"request_size", len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, classify(fmt.Errorf("read body: %w", err))
	}
	truncated := len(body) > maxBodyBytes
	if truncated {
		body = body[:maxBodyBytes]
		log.Warn("webhook body exceeds limit, truncated",
			"session_id", payload.SessionID,
			"limit_bytes", maxBodyBytes)
	}

	log.Debug("webhook replied",
		"status_code", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"response_size", len(body))

	return &domain.WebhookResponse{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       body,
		Truncated:  truncated,
	}, nil
}

// Probe issues a HEAD request to check that the webhook host answers.
func (c *Client) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return nil, domain.NewRelayError(domain.KindInternal, 0, fmt.Errorf("build request: %w", err))
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	resp.Body.Close()

	return &domain.ProbeResult{
		StatusCode: resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("ngrok-skip-browser-warning", "true")
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewRelayError(domain.KindTimeout, 0, fmt.Errorf("%w: %v", domain.ErrTimeout, err))
	}
	return domain.NewRelayError(domain.KindConnection, 0, fmt.Errorf("%w: %v", domain.ErrUnreachable, err))
}
