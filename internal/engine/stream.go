package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/identity"
)

const (
	dataPrefix = "data: "
	terminator = "[DONE]"
)

// Event is one decoded unit of a completion stream. Any combination of
// fields may be set; absent fields stay zero.
type Event struct {
	Content string
	Model   string
	Usage   *domain.Usage
}

// Stream is a pull-based view of a streaming completion. Call Recv until it
// returns io.EOF, then check Terminated to tell a clean [DONE] from a
// connection that just went away. Close releases the transport and is safe
// to call at any point, including mid-stream when the caller gives up.
type Stream struct {
	status     int
	downgraded bool
	warning    bool
	errBody    []byte

	body       io.ReadCloser
	events     chan Event
	idle       time.Duration
	terminated atomic.Bool
	closed     chan struct{}
	closeOnce  sync.Once
}

// StreamCompletion issues a streaming chat completion. On a non-200 status
// the entire body is read synchronously into ErrBody and the stream carries
// no events; streaming is never attempted against an error response.
func (c *Client) StreamCompletion(ctx context.Context, req domain.ChatRequest, id identity.Resolved) (*Stream, error) {
	req = Normalize(req)
	req.Stream = true

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload), id)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streams.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}

	s := &Stream{
		status:     resp.StatusCode,
		downgraded: advisory(resp.Header, HeaderModelDowngraded),
		warning:    advisory(resp.Header, HeaderBudgetWarning),
		idle:       c.idleTimeout,
		closed:     make(chan struct{}),
	}

	if resp.StatusCode != http.StatusOK {
		s.errBody, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		return s, nil
	}

	s.body = resp.Body
	s.events = make(chan Event)
	go s.read()

	return s, nil
}

func (s *Stream) Status() int           { return s.status }
func (s *Stream) ModelDowngraded() bool { return s.downgraded }
func (s *Stream) BudgetWarning() bool   { return s.warning }

// ErrBody is the full error body when Status is not 200, nil otherwise.
func (s *Stream) ErrBody() []byte { return s.errBody }

// Terminated reports whether the stream ended with the [DONE] terminator,
// the only normal termination path.
func (s *Stream) Terminated() bool { return s.terminated.Load() }

func (s *Stream) read() {
	defer close(s.events)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, dataPrefix)
		if data == terminator {
			s.terminated.Store(true)
			return
		}

		var chunk domain.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// A malformed chunk must not abort an otherwise-healthy stream.
			continue
		}

		ev := Event{Model: chunk.Model, Usage: chunk.Usage}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
			ev.Content = chunk.Choices[0].Delta.Content
		}
		if ev.Content == "" && ev.Model == "" && ev.Usage == nil {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.closed:
			return
		}
	}
}

// Recv returns the next event. It returns io.EOF at end of stream and
// domain.ErrEngineTimeout when the engine stalls past the idle window
// without sending a chunk or a terminator.
func (s *Stream) Recv() (Event, error) {
	if s.status != http.StatusOK || s.events == nil {
		return Event{}, io.EOF
	}

	timer := time.NewTimer(s.idle)
	defer timer.Stop()

	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	case <-timer.C:
		s.Close()
		return Event{}, domain.ErrEngineTimeout
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.body != nil {
			s.body.Close()
		}
	})
	return nil
}
