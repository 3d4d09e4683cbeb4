// Package webhook POSTs pipeline completion events as JSON.
//
// Requests carry the event type and pipeline ID as headers so receivers can
// route and deduplicate without parsing the body. With a Secret configured
// the body is signed with HMAC-SHA256 in SignatureHeader.
//
// Network errors and 5xx responses are retried with backoff; 4xx responses
// are final.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/framewrap/adapter"
	"github.com/pithecene-io/framewrap/iox"
)

// Request headers.
const (
	EventHeader     = "X-Framewrap-Event"
	PipelineHeader  = "X-Framewrap-Pipeline"
	SignatureHeader = "X-Framewrap-Signature"
)

// DefaultTimeout bounds one request when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Config configures the webhook adapter.
type Config struct {
	URL     string
	Headers map[string]string
	// Secret, when set, keys the body signature.
	Secret  string
	Timeout time.Duration
	Retries int
}

// Adapter publishes completion events over HTTP.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Publish POSTs ev, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, ev *adapter.PipelineCompletedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	header := a.header(ev.PipelineID, body)
	return adapter.Retry(ctx, "webhook", a.cfg.Retries, isClientError, func(ctx context.Context) error {
		return a.post(ctx, header, body)
	})
}

// header builds the request headers once per event. Custom headers are
// applied last and may override the defaults.
func (a *Adapter) header(pipelineID string, body []byte) http.Header {
	h := make(http.Header, 4+len(a.cfg.Headers))
	h.Set("Content-Type", "application/json")
	h.Set(EventHeader, adapter.EventTypePipelineCompleted)
	h.Set(PipelineHeader, pipelineID)
	if a.cfg.Secret != "" {
		h.Set(SignatureHeader, Sign(a.cfg.Secret, body))
	}
	for k, v := range a.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

func (a *Adapter) post(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	// Drained so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
