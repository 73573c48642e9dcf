// Package echo provides a deterministic in-process backend for tests and local
// development. It implements domain.Backend without making network calls.
package echo

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	responsePrefix    = "Mock response to: "
	fallbackPrompt    = "Hello!"
	maxEchoedRunes    = 50
	fixedPromptTokens = 10
	chunkDelay        = 10 * time.Millisecond
)

// Backend answers every request with a fixed template around the last user message.
type Backend struct {
	chunkDelay time.Duration
	closed     atomic.Bool
}

// NewBackend creates a new echo backend.
func NewBackend() *Backend {
	return &Backend{chunkDelay: chunkDelay}
}

// Probe reports the backend as reachable until it is closed.
func (b *Backend) Probe(_ context.Context) bool {
	return !b.closed.Load()
}

// Generate returns the echoed completion.
func (b *Backend) Generate(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	content := buildContent(req.Messages)
	completionTokens := len(strings.Fields(content))

	observability.FromContext(ctx).Debug("echo completed",
		observability.Int("completion_tokens", completionTokens),
	)

	return &domain.CompletionResult{
		Content:      content,
		FinishReason: domain.FinishReasonStop,
		Usage:        domain.NewUsage(fixedPromptTokens, completionTokens),
	}, nil
}

// GenerateStream emits the echoed completion one word at a time. The last
// word carries the stop finish reason.
func (b *Backend) GenerateStream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	result, err := b.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)

		words := strings.Fields(result.Content)
		for i, word := range words {
			event := domain.StreamEvent{Content: word + " "}
			if i == len(words)-1 {
				event.FinishReason = domain.FinishReasonStop
			}

			select {
			case <-ctx.Done():
				return
			case events <- event:
			}

			if b.chunkDelay > 0 && i < len(words)-1 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.chunkDelay):
				}
			}
		}
	}()

	return events, nil
}

// Close marks the backend unavailable.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

// buildContent echoes up to the first 50 characters of the last user message.
func buildContent(messages []domain.Message) string {
	prompt := fallbackPrompt
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			prompt = messages[i].Text()
			break
		}
	}

	runes := []rune(prompt)
	if len(runes) > maxEchoedRunes {
		runes = runes[:maxEchoedRunes]
	}

	return responsePrefix + string(runes)
}
