package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
)

func forwardReq() *request.Request {
	r := &request.Request{
		ID:             "req-1",
		AgentID:        "support-bot",
		ActionType:     "refund",
		TargetResource: "payments/refund",
		Parameters:     map[string]interface{}{"amount": 100.0},
	}
	r.Normalize()
	return r
}

func TestHTTPSinkForwards(t *testing.T) {
	var body forwardBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	res, err := NewHTTPSink(srv.URL).Forward(context.Background(), forwardReq())
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
	if res.Digest == "" {
		t.Error("digest must be set for a non-empty response body")
	}
	if body.RequestID != "req-1" || body.Parameters["amount"] != 100.0 {
		t.Errorf("forwarded body = %+v", body)
	}
}

func TestHTTPSinkTargetError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPSink(srv.URL).Forward(context.Background(), forwardReq()); err == nil {
		t.Error("non-2xx target reply must be an error")
	}
}

func TestDigestStable(t *testing.T) {
	a := Digest([]byte("hello"))
	b := Digest([]byte("hello"))
	if a == "" || a != b {
		t.Errorf("digest not stable: %q vs %q", a, b)
	}
	if Digest(nil) != "" {
		t.Error("empty body digests to empty string")
	}
	if Digest([]byte("other")) == a {
		t.Error("different bodies must digest differently")
	}
}

func TestNoopSink(t *testing.T) {
	res, err := NoopSink{}.Forward(context.Background(), forwardReq())
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if res.Digest != "" {
		t.Error("noop sink has no target response")
	}
}
