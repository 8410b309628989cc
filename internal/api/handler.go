package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/budget"
	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/identity"
	"github.com/dynamo-ai/engine-relay/internal/relay"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

type HandlerConfig struct {
	Relay  *relay.Relay
	Budget *budget.Checker
}

type Handler struct {
	relay  *relay.Relay
	budget *budget.Checker
	mux    *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		relay:  cfg.Relay,
		budget: cfg.Budget,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /v1/budget", h.handleBudget)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := callerFromRequest(r)

	w.Header().Set("X-Request-ID", requestID)

	if req.Stream {
		h.streamReply(w, r, req, caller, requestID, start)
		return
	}

	text := h.relay.Complete(ctx, req, caller, requestID)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)

	slog.Info("turn served",
		"request_id", requestID,
		"model", req.Model,
		"stream", false,
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

func (h *Handler) streamReply(w http.ResponseWriter, r *http.Request, req domain.ChatRequest, caller *identity.Caller, requestID string, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	stream := h.relay.Stream(r.Context(), req, caller, requestID)
	defer stream.Close()

	for {
		unit, err := stream.Next()
		if err != nil {
			break
		}
		if _, err := io.WriteString(w, unit); err != nil {
			// Host went away; Close releases the upstream connection.
			return
		}
		flusher.Flush()
	}

	slog.Info("turn served",
		"request_id", requestID,
		"model", req.Model,
		"stream", true,
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	resp := domain.ModelsResponse{
		Object: "list",
		Data:   h.relay.Models(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleBudget(w http.ResponseWriter, r *http.Request) {
	text := h.budget.Check(r.Context(), callerFromRequest(r))

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, text)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	engineStatus := "ok"
	status := "healthy"

	if err := h.relay.Health(r.Context()); err != nil {
		engineStatus = "unhealthy"
		status = "degraded"
	}

	resp := map[string]interface{}{
		"status":  status,
		"version": version,
		"engine":  engineStatus,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// callerFromRequest reads the host's identity descriptor headers. All-absent
// headers mean no identity was supplied; the relay then proceeds with its
// anonymous defaults.
func callerFromRequest(r *http.Request) *identity.Caller {
	email := r.Header.Get("X-User-Email")
	name := r.Header.Get("X-User-Name")
	role := r.Header.Get("X-User-Role")

	if email == "" && name == "" && role == "" {
		return nil
	}

	return &identity.Caller{Email: email, Name: name, Role: role}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
