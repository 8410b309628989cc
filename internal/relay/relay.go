// Package relay turns caller chat requests into Claude Engine calls and
// reshapes the engine's replies into visible text. Every failure path ends
// in a user-facing message; the relay never leaves a turn without output.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/engine"
	"github.com/dynamo-ai/engine-relay/internal/identity"
	"github.com/dynamo-ai/engine-relay/internal/metrics"
	"github.com/dynamo-ai/engine-relay/internal/telemetry"
)

// pipeModels is the model trio advertised to the host when the engine is
// reachable.
var pipeModels = []domain.Model{
	{ID: "dynamo-claude-sonnet", Name: "Claude Sonnet 4"},
	{ID: "dynamo-claude-opus", Name: "Claude Opus 4"},
	{ID: "dynamo-claude-haiku", Name: "Claude Haiku 4"},
}

type Config struct {
	Engine          *engine.Client
	ShowUsageFooter bool
}

type Relay struct {
	engine     *engine.Client
	showFooter bool
}

func New(cfg Config) *Relay {
	return &Relay{
		engine:     cfg.Engine,
		showFooter: cfg.ShowUsageFooter,
	}
}

// Complete handles one non-streaming turn. It returns the full visible
// reply; transport faults and engine errors come back as message text, never
// as an error or a blank reply.
func (r *Relay) Complete(ctx context.Context, req domain.ChatRequest, caller *identity.Caller, requestID string) string {
	ctx, span := telemetry.StartSpan(ctx, "relay.complete")
	defer span.End()

	id := identity.Resolve(caller)
	req = engine.Normalize(req)
	telemetry.AddTurnAttributes(span, id.Email, id.EngineRole, req.Model, requestID)

	start := time.Now()

	res, err := r.engine.Complete(ctx, req, id)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordTurn("sync", "transport_fault", time.Since(start).Seconds())
		recordTransportFault(err)
		slog.Warn("engine call failed", "user_email", id.Email, "model", req.Model, "error", err)
		return transportMessage(err)
	}

	if res.Status != http.StatusOK {
		msg, code := classifyError(res.Status, res.Body)
		metrics.RecordTurn("sync", "engine_error", time.Since(start).Seconds())
		metrics.EngineErrors.WithLabelValues(code).Inc()
		slog.Warn("engine returned error",
			"user_email", id.Email,
			"model", req.Model,
			"status", res.Status,
			"code", code,
		)
		return msg
	}

	var resp domain.ChatResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordTurn("sync", "bad_response", time.Since(start).Seconds())
		return fmt.Sprintf(msgUnexpected, err)
	}

	content := visibleText(resp)

	model := resp.Model
	if model == "" {
		model = "unknown"
	}

	var usage domain.Usage
	if resp.Usage != nil {
		usage = *resp.Usage
	}

	if res.ModelDowngraded {
		metrics.ModelDowngrades.Inc()
	}
	metrics.RecordTurn("sync", "ok", time.Since(start).Seconds())
	metrics.RecordTokens(model, usage.PromptTokens, usage.CompletionTokens)
	telemetry.AddTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens)

	slog.Info("turn completed",
		"user_email", id.Email,
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if r.showFooter {
		content += composeFooter(model, usage.PromptTokens, usage.CompletionTokens, res.ModelDowngraded, res.BudgetWarning)
	}

	return content
}

// Stream handles one streaming turn. The returned TextStream yields visible
// text units in arrival order; it never fails to construct, so the caller
// always has something to drain. The span stays open until the stream
// finishes so the trace covers the whole turn, not just its setup.
func (r *Relay) Stream(ctx context.Context, req domain.ChatRequest, caller *identity.Caller, requestID string) *TextStream {
	ctx, span := telemetry.StartSpan(ctx, "relay.stream")

	id := identity.Resolve(caller)
	req = engine.Normalize(req)
	telemetry.AddTurnAttributes(span, id.Email, id.EngineRole, req.Model, requestID)

	start := time.Now()

	s, err := r.engine.StreamCompletion(ctx, req, id)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		span.End()
		metrics.RecordTurn("stream", "transport_fault", time.Since(start).Seconds())
		recordTransportFault(err)
		slog.Warn("engine stream failed", "user_email", id.Email, "model", req.Model, "error", err)
		return &TextStream{pending: transportMessage(err)}
	}

	if s.Status() != http.StatusOK {
		msg, code := classifyError(s.Status(), s.ErrBody())
		span.End()
		metrics.RecordTurn("stream", "engine_error", time.Since(start).Seconds())
		metrics.EngineErrors.WithLabelValues(code).Inc()
		slog.Warn("engine returned error",
			"user_email", id.Email,
			"model", req.Model,
			"status", s.Status(),
			"code", code,
		)
		return &TextStream{pending: msg}
	}

	if s.ModelDowngraded() {
		metrics.ModelDowngrades.Inc()
	}

	return &TextStream{
		relay: r,
		src:   s,
		span:  span,
		email: id.Email,
		model: req.Model,
		start: start,
	}
}

// Models advertises the available model choices. The engine health probe
// gates the list: any probe outcome other than a 200 yields a single
// unavailable sentinel instead.
func (r *Relay) Models(ctx context.Context) []domain.Model {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.engine.Health(ctx); err != nil {
		slog.Warn("engine health probe failed", "error", err)
		return []domain.Model{{ID: "error", Name: "Claude Engine unavailable"}}
	}

	return pipeModels
}

func (r *Relay) Health(ctx context.Context) error {
	return r.engine.Health(ctx)
}

func visibleText(resp domain.ChatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	if resp.Choices[0].Message == nil {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func recordTransportFault(err error) {
	switch {
	case errors.Is(err, domain.ErrEngineTimeout):
		metrics.TransportFaults.WithLabelValues("timeout").Inc()
	case errors.Is(err, domain.ErrEngineUnreachable):
		metrics.TransportFaults.WithLabelValues("unreachable").Inc()
	default:
		metrics.TransportFaults.WithLabelValues("unexpected").Inc()
	}
}
