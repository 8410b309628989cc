// Package engine is the HTTP client for the Claude Engine middleware.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/httputil"
	"github.com/dynamo-ai/engine-relay/internal/identity"
)

// DefaultModel is used when the caller body carries no model.
const DefaultModel = "claude-sonnet-4-20250514"

// Advisory response headers set by the engine.
const (
	HeaderModelDowngraded = "X-Model-Downgraded"
	HeaderBudgetWarning   = "X-Budget-Warning"
)

type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration
	LookupTimeout     time.Duration
	StreamIdleTimeout time.Duration
}

type Client struct {
	baseURL     string
	completions *http.Client
	streams     *http.Client
	lookups     *http.Client
	idleTimeout time.Duration
}

func New(cfg Config) *Client {
	completionCfg := httputil.CompletionConfig()
	if cfg.RequestTimeout > 0 {
		completionCfg.Timeout = cfg.RequestTimeout
	}

	streamCfg := httputil.StreamConfig()
	if cfg.RequestTimeout > 0 {
		// Stream headers must arrive within the same window a completion gets.
		streamCfg.ResponseHeaderTimeout = cfg.RequestTimeout
	}

	lookupCfg := httputil.LookupConfig()
	if cfg.LookupTimeout > 0 {
		lookupCfg.Timeout = cfg.LookupTimeout
	}

	idle := cfg.StreamIdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		completions: httputil.NewClient(completionCfg),
		streams:     httputil.NewClient(streamCfg),
		lookups:     httputil.NewClient(lookupCfg),
		idleTimeout: idle,
	}
}

// Normalize applies the forwarding defaults: a missing model becomes
// DefaultModel. Message content is forwarded as-is, malformed or empty;
// rejecting it is the engine's job.
func Normalize(req domain.ChatRequest) domain.ChatRequest {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	return req
}

// Result is a fully-read engine response plus its advisory header flags.
type Result struct {
	Status          int
	Body            []byte
	ModelDowngraded bool
	BudgetWarning   bool
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, id identity.Resolved) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", id.Email)
	req.Header.Set("X-User-Role", id.EngineRole)
	req.Header.Set("X-User-Id", id.UserID)

	return req, nil
}

// Complete issues a non-streaming chat completion. A single attempt is made;
// transport faults come back as domain.ErrEngineUnreachable or
// domain.ErrEngineTimeout so the relay can show distinct messages.
func (c *Client) Complete(ctx context.Context, req domain.ChatRequest, id identity.Resolved) (*Result, error) {
	req = Normalize(req)
	req.Stream = false

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload), id)
	if err != nil {
		return nil, err
	}

	resp, err := c.completions.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	return &Result{
		Status:          resp.StatusCode,
		Body:            raw,
		ModelDowngraded: advisory(resp.Header, HeaderModelDowngraded),
		BudgetWarning:   advisory(resp.Header, HeaderBudgetWarning),
	}, nil
}

// Health probes GET /health. Any outcome other than a 200 is an error.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.lookups.Do(httpReq)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine unhealthy: status=%d", resp.StatusCode)
	}

	return nil
}

// Budget fetches GET /v1/budget/{userId} on the short-timeout lookup client.
func (c *Client) Budget(ctx context.Context, id identity.Resolved) (*Result, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/v1/budget/"+url.PathEscape(id.UserID), http.NoBody, id)
	if err != nil {
		return nil, err
	}

	resp, err := c.lookups.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	return &Result{Status: resp.StatusCode, Body: raw}, nil
}

func advisory(h http.Header, key string) bool {
	return h.Get(key) == "true"
}

// classifyTransport sorts a transport fault into the two classes the relay
// reports distinctly: timed out vs unreachable. Anything else passes through
// for the generic unexpected-error message.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrEngineTimeout
	}

	// A cancelled caller is not an engine fault; pass it through untouched.
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.ErrEngineTimeout
		}
		return domain.ErrEngineUnreachable
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return domain.ErrEngineUnreachable
	}

	return err
}
