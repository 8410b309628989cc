package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/budget"
	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/engine"
	"github.com/dynamo-ai/engine-relay/internal/relay"
)

// newTestHandler wires a full handler against a fake engine upstream.
func newTestHandler(t *testing.T, upstream http.HandlerFunc) *Handler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	eng := engine.New(engine.Config{
		BaseURL:           srv.URL,
		StreamIdleTimeout: time.Second,
	})
	return NewHandler(HandlerConfig{
		Relay:  relay.New(relay.Config{Engine: eng, ShowUsageFooter: true}),
		Budget: budget.NewChecker(eng),
	})
}

func fakeEngine(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/v1/budget/"):
			limit := int64(100000)
			remaining := int64(60000)
			json.NewEncoder(w).Encode(domain.BudgetStatus{
				MonthlyLimit: &limit,
				CurrentUsage: 40000,
				PercentUsed:  40,
				Remaining:    &remaining,
				ResetDate:    "2026-09-01",
				Role:         "business",
			})
		case r.URL.Path == "/v1/chat/completions":
			var req domain.ChatRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Stream {
				w.Header().Set("Content-Type", "text/event-stream")
				io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n")
				io.WriteString(w, "data: {\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2}}\n")
				io.WriteString(w, "data: [DONE]\n")
				return
			}
			json.NewEncoder(w).Encode(domain.ChatResponse{
				Model:   engine.DefaultModel,
				Choices: []domain.Choice{{Message: &domain.Message{Role: "assistant", Content: "Hello"}}},
				Usage:   &domain.Usage{PromptTokens: 10, CompletionTokens: 5},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestChatCompletions_Sync(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	body := strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("X-User-Email", "alice@corp.example")
	req.Header.Set("X-User-Role", "user")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	got := rec.Body.String()
	if !strings.HasPrefix(got, "Hello") {
		t.Errorf("body = %q, want the reply text first", got)
	}
	if !strings.Contains(got, "Tokens: 15 (10 in / 5 out)") {
		t.Errorf("body = %q, want the usage footer", got)
	}
}

func TestChatCompletions_Stream(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	body := strings.NewReader(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("X-User-Email", "alice@corp.example")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := rec.Body.String()
	if !strings.HasPrefix(got, "Hello") {
		t.Errorf("body = %q, want streamed text first", got)
	}
	if !strings.Contains(got, "Tokens: 5 (3 in / 2 out)") {
		t.Errorf("body = %q, want the footer after a clean terminator", got)
	}
}

func TestChatCompletions_BadBody(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Message != "invalid request body" {
		t.Errorf("error message = %q", resp.Error.Message)
	}
}

func TestChatCompletions_RequestIDEchoed(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want the caller's value echoed", got)
	}
}

func TestChatCompletions_RequestIDGenerated(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("want a generated X-Request-ID when none was supplied")
	}
}

func TestListModels(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp domain.ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "list" {
		t.Errorf("object = %q", resp.Object)
	}
	if len(resp.Data) != 3 {
		t.Errorf("got %d models, want 3", len(resp.Data))
	}
}

func TestBudgetEndpoint(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/budget", nil)
	req.Header.Set("X-User-Email", "alice@corp.example")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	got := rec.Body.String()
	if !strings.Contains(got, "## Token Budget — alice@corp.example") {
		t.Errorf("body = %q, want the budget heading", got)
	}
	if !strings.Contains(got, "| Monthly limit | 100,000 tokens |") {
		t.Errorf("body = %q, want the limit row", got)
	}
}

func TestBudgetEndpoint_NoIdentity(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/budget", nil))

	if !strings.Contains(rec.Body.String(), "Unable to identify your account") {
		t.Errorf("body = %q, want the sign-in error", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Run("engine healthy", func(t *testing.T) {
		h := newTestHandler(t, fakeEngine(t))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["status"] != "healthy" || resp["engine"] != "ok" {
			t.Errorf("resp = %v", resp)
		}
	})

	t.Run("engine down", func(t *testing.T) {
		h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["status"] != "degraded" || resp["engine"] != "unhealthy" {
			t.Errorf("resp = %v", resp)
		}
	})
}

func TestHealthProbes(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, fakeEngine(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("want default process metrics in the exposition")
	}
}

func TestCallerFromRequest(t *testing.T) {
	t.Run("no headers yields nil", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if callerFromRequest(r) != nil {
			t.Error("want nil caller when no identity headers are present")
		}
	})

	t.Run("partial headers yield a caller", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-User-Role", "admin")
		c := callerFromRequest(r)
		if c == nil || c.Role != "admin" || c.Email != "" {
			t.Errorf("caller = %+v", c)
		}
	})
}
