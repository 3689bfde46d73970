// Package outbound defines ports implemented by outbound adapters.
package outbound

import (
	"context"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
)

// ForwardResult describes the target system's reply to a forwarded action.
type ForwardResult struct {
	// StatusCode is the target's HTTP status (0 for non-HTTP sinks).
	StatusCode int
	// Digest is a stable digest of the target's response body. Audit
	// entries persist the digest, never the body.
	Digest string
}

// ForwardSink delivers an allowed action to the target system. The
// transport is pluggable; the gateway fixes only this contract.
type ForwardSink interface {
	// Forward sends the request (original, unmasked parameters) to the
	// target and returns a result describing the reply.
	Forward(ctx context.Context, req *request.Request) (*ForwardResult, error)
}

// WebhookPoster delivers approval notifications to the configured
// approval service.
type WebhookPoster interface {
	// Post sends payload as JSON to url, retrying with backoff within
	// the poster's total deadline. A non-2xx final reply is an error.
	Post(ctx context.Context, url string, payload interface{}) error
}
