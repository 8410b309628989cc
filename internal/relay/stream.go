package relay

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/engine"
	"github.com/dynamo-ai/engine-relay/internal/metrics"
	"github.com/dynamo-ai/engine-relay/internal/telemetry"
)

// TextStream produces the visible reply one unit at a time. Call Next until
// it returns io.EOF. Content units arrive in the order the engine sent them;
// the usage footer, when enabled, is the single final unit after a clean
// terminator. A caller that stops early must Close to release the transport;
// no footer is produced in that case.
type TextStream struct {
	relay *Relay
	src   *engine.Stream
	span  trace.Span
	email string
	model string
	usage domain.Usage

	pending  string
	finished bool
	start    time.Time
}

func (t *TextStream) Next() (string, error) {
	if t.finished {
		return "", io.EOF
	}

	if t.pending != "" {
		unit := t.pending
		t.pending = ""
		t.finished = true
		return unit, nil
	}

	if t.src == nil {
		t.finished = true
		return "", io.EOF
	}

	for {
		ev, err := t.src.Recv()
		if err != nil {
			t.finished = true
			t.src.Close()

			if errors.Is(err, domain.ErrEngineTimeout) {
				if t.span != nil {
					telemetry.AddErrorAttribute(t.span, err)
				}
				t.endSpan()
				metrics.RecordTurn("stream", "idle_timeout", time.Since(t.start).Seconds())
				metrics.TransportFaults.WithLabelValues("timeout").Inc()
				slog.Warn("engine stream stalled", "user_email", t.email, "model", t.model)
				return msgTimeout, nil
			}

			t.record()
			t.endSpan()
			if t.src.Terminated() && t.relay.showFooter {
				return composeFooter(t.model, t.usage.PromptTokens, t.usage.CompletionTokens,
					t.src.ModelDowngraded(), t.src.BudgetWarning()), nil
			}
			return "", io.EOF
		}

		if ev.Model != "" {
			t.model = ev.Model
		}
		if ev.Usage != nil {
			// Last-chunk-wins: usage is a snapshot, not an increment.
			t.usage = *ev.Usage
		}
		if ev.Content != "" {
			return ev.Content, nil
		}
	}
}

func (t *TextStream) Close() error {
	t.finished = true
	t.endSpan()
	if t.src != nil {
		return t.src.Close()
	}
	return nil
}

// endSpan is safe to call more than once; a second End on an already-ended
// span is a no-op.
func (t *TextStream) endSpan() {
	if t.span != nil {
		t.span.End()
	}
}

func (t *TextStream) record() {
	status := "ok"
	if !t.src.Terminated() {
		status = "disconnected"
	}
	metrics.RecordTurn("stream", status, time.Since(t.start).Seconds())
	metrics.RecordTokens(t.model, t.usage.PromptTokens, t.usage.CompletionTokens)
	if t.span != nil {
		telemetry.AddTokenAttributes(t.span, t.usage.PromptTokens, t.usage.CompletionTokens)
	}
	slog.Info("streaming turn completed",
		"user_email", t.email,
		"model", t.model,
		"prompt_tokens", t.usage.PromptTokens,
		"completion_tokens", t.usage.CompletionTokens,
		"terminated", t.src.Terminated(),
		"latency_ms", time.Since(t.start).Milliseconds(),
	)
}
