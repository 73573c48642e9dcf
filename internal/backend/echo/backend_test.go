package echo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/backend/echo"
	"github.com/davidbz/ember/internal/domain"
)

func request(messages ...domain.Message) *domain.CompletionRequest {
	return &domain.CompletionRequest{Model: "echo", Messages: messages}
}

func TestGenerate_EchoesLastUserMessage(t *testing.T) {
	backend := echo.NewBackend()

	result, err := backend.Generate(context.Background(), request(
		domain.TextMessage(domain.RoleSystem, "be brief"),
		domain.TextMessage(domain.RoleUser, "first"),
		domain.TextMessage(domain.RoleAssistant, "reply"),
		domain.TextMessage(domain.RoleUser, "Hello world"),
	))

	require.NoError(t, err)
	require.Equal(t, "Mock response to: Hello world", result.Content)
	require.Equal(t, domain.FinishReasonStop, result.FinishReason)
	require.Equal(t, domain.NewUsage(10, 5), result.Usage)
}

func TestGenerate_TruncatesLongPrompts(t *testing.T) {
	backend := echo.NewBackend()

	result, err := backend.Generate(context.Background(), request(
		domain.TextMessage(domain.RoleUser, strings.Repeat("a", 80)),
	))

	require.NoError(t, err)
	require.Equal(t, "Mock response to: "+strings.Repeat("a", 50), result.Content)
}

func TestGenerate_EmptyMessages(t *testing.T) {
	backend := echo.NewBackend()

	result, err := backend.Generate(context.Background(), request())

	require.NoError(t, err)
	require.Equal(t, "Mock response to: Hello!", result.Content)
}

func TestGenerate_NilRequest(t *testing.T) {
	backend := echo.NewBackend()

	result, err := backend.Generate(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, result)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestGenerateStream_WordByWord(t *testing.T) {
	backend := echo.NewBackend()

	events, err := backend.GenerateStream(context.Background(), request(
		domain.TextMessage(domain.RoleUser, "Hello"),
	))
	require.NoError(t, err)

	var got []domain.StreamEvent
	for event := range events {
		got = append(got, event)
	}

	require.Len(t, got, 4)
	require.Equal(t, "Mock ", got[0].Content)
	require.Equal(t, "Hello ", got[3].Content)

	terminal := 0
	for i, event := range got {
		require.False(t, event.KeepAlive)
		if event.IsTerminal() {
			terminal++
			require.Equal(t, len(got)-1, i)
		}
	}
	require.Equal(t, 1, terminal)
}

func TestGenerateStream_ContextCancellation(t *testing.T) {
	backend := echo.NewBackend()
	ctx, cancel := context.WithCancel(context.Background())

	events, err := backend.GenerateStream(ctx, request(
		domain.TextMessage(domain.RoleUser, "This is a longer message for testing cancellation"),
	))
	require.NoError(t, err)

	<-events
	cancel()

	count := 1
	for range events {
		count++
	}
	require.Less(t, count, 11)
}

func TestProbe(t *testing.T) {
	backend := echo.NewBackend()

	require.True(t, backend.Probe(context.Background()))
	require.NoError(t, backend.Close())
	require.False(t, backend.Probe(context.Background()))
}
