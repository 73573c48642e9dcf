package vllm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	dataPrefix  = "data:"
	doneMarker  = "[DONE]"
	maxLineSize = 1024 * 1024
)

// State is the position of a Reframer in its event loop.
type State int32

const (
	StateAwaitingLine State = iota
	StateEmittingContent
	StateEmittingKeepAlive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingLine:
		return "awaiting_line"
	case StateEmittingContent:
		return "emitting_content"
	case StateEmittingKeepAlive:
		return "emitting_keepalive"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type lineAction int

const (
	lineSkip lineAction = iota
	lineEvent
	lineDone
)

type readResult struct {
	line string
	err  error
}

// Reframer turns a backend event-stream body into StreamEvents and injects
// keep-alive events whenever the interval elapses.
//
// Events may be called once. The returned channel is single-consumer and is
// closed after the backend sentinel, end of body, a read error, or context
// cancellation. The body is closed before the channel is.
type Reframer struct {
	body      io.ReadCloser
	keepAlive time.Duration
	state     atomic.Int32
}

// NewReframer wraps an open event-stream body.
func NewReframer(body io.ReadCloser, keepAlive time.Duration) *Reframer {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAliveInterval
	}
	return &Reframer{
		body:      body,
		keepAlive: keepAlive,
	}
}

// State returns the current loop state.
func (r *Reframer) State() State {
	return State(r.state.Load())
}

func (r *Reframer) setState(s State) {
	r.state.Store(int32(s))
}

// Events starts consuming the body and returns the event channel.
func (r *Reframer) Events(ctx context.Context) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent)
	lines := make(chan readResult)
	stop := make(chan struct{})

	r.setState(StateAwaitingLine)

	go r.read(lines, stop)
	go r.emit(ctx, lines, stop, out)

	return out
}

// read forwards body lines until EOF, a read error, or stop.
func (r *Reframer) read(lines chan<- readResult, stop <-chan struct{}) {
	defer close(lines)

	scanner := bufio.NewScanner(r.body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		select {
		case lines <- readResult{line: scanner.Text()}:
		case <-stop:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case lines <- readResult{err: err}:
		case <-stop:
		}
	}
}

func (r *Reframer) emit(
	ctx context.Context,
	lines <-chan readResult,
	stop chan struct{},
	out chan<- domain.StreamEvent,
) {
	logger := observability.FromContext(ctx)

	defer close(out)
	defer r.body.Close()
	defer close(stop)
	defer r.setState(StateTerminated)

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()

	for {
		r.setState(StateAwaitingLine)

		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			r.setState(StateEmittingKeepAlive)
			if !send(ctx, out, domain.StreamEvent{KeepAlive: true}) {
				return
			}

		case res, ok := <-lines:
			if !ok {
				return
			}
			if res.err != nil {
				send(ctx, out, domain.StreamEvent{Err: fmt.Errorf("failed to read stream: %w", res.err)})
				return
			}

			event, action, err := decodeLine(res.line)
			if err != nil {
				var decodeErr *domain.StreamDecodeError
				if errors.As(err, &decodeErr) {
					observability.StreamDecodeErrorsTotal.Inc()
					logger.Warn("discarding malformed stream event",
						observability.String("payload", decodeErr.Payload),
						observability.Error(decodeErr.Err),
					)
				}
				continue
			}

			switch action {
			case lineDone:
				return
			case lineEvent:
				r.setState(StateEmittingContent)
				if !send(ctx, out, event) {
					return
				}
			case lineSkip:
			}
		}
	}
}

func send(ctx context.Context, out chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeLine interprets one line of the backend event stream. Blank lines,
// comments, and non-data fields are skipped. A payload that cannot be decoded
// yields a *domain.StreamDecodeError.
func decodeLine(line string) (domain.StreamEvent, lineAction, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, dataPrefix) {
		return domain.StreamEvent{}, lineSkip, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneMarker {
		return domain.StreamEvent{}, lineDone, nil
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return domain.StreamEvent{}, lineSkip, &domain.StreamDecodeError{Payload: payload, Err: err}
	}
	if len(chunk.Choices) == 0 {
		return domain.StreamEvent{}, lineSkip, &domain.StreamDecodeError{
			Payload: payload,
			Err:     errors.New("event has no choices"),
		}
	}

	choice := chunk.Choices[0]
	event := domain.StreamEvent{}
	if choice.Delta.Content != nil {
		event.Content = *choice.Delta.Content
	}
	if choice.FinishReason != nil {
		event.FinishReason = *choice.FinishReason
	}

	return event, lineEvent, nil
}
