// Package webhook delivers approval notifications to the configured
// approval service with bounded retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/port/outbound"
)

// attemptTimeout bounds each individual POST.
const attemptTimeout = 5 * time.Second

// Poster implements outbound.WebhookPoster with capped exponential
// backoff. The caller's context carries the total retry deadline.
type Poster struct {
	client    *http.Client
	logger    *slog.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewPoster creates a webhook poster.
func NewPoster(logger *slog.Logger) *Poster {
	return &Poster{
		client:    &http.Client{Timeout: attemptTimeout},
		logger:    logger,
		baseDelay: time.Second,
		maxDelay:  8 * time.Second,
	}
}

// Post sends payload as JSON to url, retrying failed attempts with
// exponential backoff until the context deadline expires.
func (p *Poster) Post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	delay := p.baseDelay
	attempt := 0
	for {
		attempt++
		err = p.attempt(ctx, url, body)
		if err == nil {
			return nil
		}
		p.logger.Debug("webhook attempt failed",
			"url", url, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("webhook retries exhausted after %d attempts: %w", attempt, err)
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.maxDelay {
			delay = p.maxDelay
		}
	}
}

func (p *Poster) attempt(ctx context.Context, url string, body []byte) error {
	actx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Compile-time interface verification.
var _ outbound.WebhookPoster = (*Poster)(nil)
