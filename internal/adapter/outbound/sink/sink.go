// Package sink implements the target-system forward step. The transport
// is pluggable; this package ships an HTTP sink and a no-op sink for
// deployments where the gateway only governs.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
	"github.com/vasuans/sentinel-ai-gateway/internal/port/outbound"
)

// forwardTimeout bounds one forward round trip.
const forwardTimeout = 10 * time.Second

// NoopSink accepts every forward without contacting any target.
// Used when no forward target is configured.
type NoopSink struct{}

// Forward implements outbound.ForwardSink.
func (NoopSink) Forward(_ context.Context, _ *request.Request) (*outbound.ForwardResult, error) {
	return &outbound.ForwardResult{}, nil
}

// HTTPSink forwards allowed actions as JSON POSTs to a fixed target URL.
type HTTPSink struct {
	client *http.Client
	url    string
}

// NewHTTPSink creates a sink posting to the given target URL.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		client: &http.Client{Timeout: forwardTimeout},
		url:    url,
	}
}

// forwardBody is the JSON shape delivered to the target.
type forwardBody struct {
	RequestID      string                 `json:"request_id"`
	AgentID        string                 `json:"agent_id"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource"`
	Parameters     map[string]interface{} `json:"parameters"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// Forward implements outbound.ForwardSink. The audit trail keeps only a
// digest of the target's reply; the body itself is discarded.
func (s *HTTPSink) Forward(ctx context.Context, req *request.Request) (*outbound.ForwardResult, error) {
	body, err := json.Marshal(forwardBody{
		RequestID:      req.ID,
		AgentID:        req.AgentID,
		ActionType:     req.ActionType,
		TargetResource: req.TargetResource,
		Parameters:     req.Parameters,
		Context:        req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("encode forward body: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("forward to target: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read target response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("target returned %d", resp.StatusCode)
	}

	return &outbound.ForwardResult{
		StatusCode: resp.StatusCode,
		Digest:     Digest(respBody),
	}, nil
}

// Digest returns the stable hex digest persisted in audit entries.
func Digest(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(body), 16)
}

// Compile-time interface verification.
var (
	_ outbound.ForwardSink = (*HTTPSink)(nil)
	_ outbound.ForwardSink = NoopSink{}
)
