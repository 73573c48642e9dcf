package vllm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/backend/vllm"
	"github.com/davidbz/ember/internal/domain"
)

func newRequest(stream bool) *domain.CompletionRequest {
	return &domain.CompletionRequest{
		Model:       "test-model",
		Messages:    []domain.Message{domain.TextMessage(domain.RoleUser, "Hello")},
		MaxTokens:   64,
		Temperature: domain.DefaultTemperature,
		TopP:        domain.DefaultTopP,
		Stop:        domain.StopSequences{"\n\n"},
		Stream:      stream,
	}
}

func newClient(t *testing.T, url string) *vllm.Client {
	t.Helper()
	return newStreamingClient(t, url, time.Hour)
}

func newStreamingClient(t *testing.T, url string, keepAlive time.Duration) *vllm.Client {
	t.Helper()

	client, err := vllm.NewClient(vllm.Config{
		BaseURL:           url + "/",
		RequestTimeout:    5 * time.Second,
		ConnectTimeout:    time.Second,
		ProbeTimeout:      time.Second,
		KeepAliveInterval: keepAlive,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("should reject an empty base URL", func(t *testing.T) {
		_, err := vllm.NewClient(vllm.Config{})
		require.Error(t, err)
	})
}

func TestClient_Probe(t *testing.T) {
	t.Run("should report a healthy backend", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		require.True(t, newClient(t, server.URL).Probe(context.Background()))
	})

	t.Run("should report an unhealthy backend", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		require.False(t, newClient(t, server.URL).Probe(context.Background()))
	})

	t.Run("should report an unreachable backend without failing", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		require.False(t, newClient(t, url).Probe(context.Background()))
	})
}

func TestClient_Generate(t *testing.T) {
	t.Run("should forward the request and extract the first choice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/chat/completions", r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "test-model", body["model"])
			require.Equal(t, false, body["stream"])
			require.InDelta(t, 64, body["max_tokens"], 0)
			require.Equal(t, []any{"\n\n"}, body["stop"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{
				"id": "cmpl-1",
				"choices": [{"message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "length"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 99}
			}`)
		}))
		defer server.Close()

		result, err := newClient(t, server.URL).Generate(context.Background(), newRequest(false))
		require.NoError(t, err)
		require.Equal(t, "Hi there", result.Content)
		require.Equal(t, domain.FinishReasonLength, result.FinishReason)
		require.Equal(t, domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, result.Usage)
	})

	t.Run("should default finish reason and usage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}}]}`)
		}))
		defer server.Close()

		result, err := newClient(t, server.URL).Generate(context.Background(), newRequest(false))
		require.NoError(t, err)
		require.Equal(t, domain.FinishReasonStop, result.FinishReason)
		require.Equal(t, domain.Usage{}, result.Usage)
	})

	t.Run("should return backend error with status and body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newClient(t, server.URL).Generate(context.Background(), newRequest(false))

		var backendErr *domain.BackendError
		require.ErrorAs(t, err, &backendErr)
		require.Equal(t, http.StatusServiceUnavailable, backendErr.StatusCode)
		require.Contains(t, backendErr.Body, "model overloaded")
	})

	t.Run("should return unreachable error when nothing listens", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := newClient(t, url).Generate(context.Background(), newRequest(false))

		var unreachable *domain.BackendUnreachableError
		require.ErrorAs(t, err, &unreachable)
		require.Equal(t, url+"/v1/chat/completions", unreachable.URL)
	})

	t.Run("should fail when the backend returns no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"choices": []}`)
		}))
		defer server.Close()

		_, err := newClient(t, server.URL).Generate(context.Background(), newRequest(false))
		require.Error(t, err)
	})

	t.Run("should fail after close", func(t *testing.T) {
		client, err := vllm.NewClient(vllm.Config{BaseURL: "http://localhost:1"})
		require.NoError(t, err)
		require.NoError(t, client.Close())
		require.NoError(t, client.Close())

		_, err = client.Generate(context.Background(), newRequest(false))
		require.Error(t, err)
	})
}

func TestClient_GenerateStream(t *testing.T) {
	t.Run("should stream content events from the backend", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, true, body["stream"])

			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range []string{"one", " two"} {
				_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", word)
			}
			_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		events, err := newClient(t, server.URL).GenerateStream(context.Background(), newRequest(true))
		require.NoError(t, err)

		var got []domain.StreamEvent
		for event := range events {
			got = append(got, event)
		}

		require.Len(t, got, 3)
		require.Equal(t, "one", got[0].Content)
		require.Equal(t, " two", got[1].Content)
		require.Equal(t, domain.FinishReasonStop, got[2].FinishReason)
	})

	t.Run("should deliver a backend error as the only event", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		}))
		defer server.Close()

		events, err := newClient(t, server.URL).GenerateStream(context.Background(), newRequest(true))
		require.NoError(t, err)

		got := collect(t, events)
		require.Len(t, got, 1)

		var backendErr *domain.BackendError
		require.ErrorAs(t, got[0].Err, &backendErr)
		require.Equal(t, http.StatusBadRequest, backendErr.StatusCode)
	})

	t.Run("should fail synchronously after close", func(t *testing.T) {
		client := newClient(t, "http://127.0.0.1:1")
		require.NoError(t, client.Close())

		events, err := client.GenerateStream(context.Background(), newRequest(true))
		require.Error(t, err)
		require.Nil(t, events)
	})

	t.Run("should emit keep-alives while waiting for response headers", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"late\"},\"finish_reason\":\"stop\"}]}\n\n")
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := newStreamingClient(t, server.URL, 20*time.Millisecond)
		events, err := client.GenerateStream(context.Background(), newRequest(true))
		require.NoError(t, err)

		select {
		case first := <-events:
			require.True(t, first.KeepAlive)
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("no keep-alive while the backend was silent")
		}
		close(release)

		var content []string
		for _, event := range collect(t, events) {
			require.NoError(t, event.Err)
			if !event.KeepAlive {
				content = append(content, event.Content)
			}
		}
		require.Equal(t, []string{"late"}, content)
	})

	t.Run("should abort the backend call when the caller cancels mid-stream", func(t *testing.T) {
		aborted := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
			w.(http.Flusher).Flush()

			<-r.Context().Done()
			close(aborted)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := newClient(t, server.URL).GenerateStream(ctx, newRequest(true))
		require.NoError(t, err)

		first := <-events
		require.Equal(t, "partial", first.Content)

		cancel()
		collect(t, events)
		requireClosed(t, aborted)
	})

	t.Run("should abort the backend call when the caller cancels before headers", func(t *testing.T) {
		aborted := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			close(aborted)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := newStreamingClient(t, server.URL, 20*time.Millisecond)
		events, err := client.GenerateStream(ctx, newRequest(true))
		require.NoError(t, err)

		first := <-events
		require.True(t, first.KeepAlive)

		cancel()
		collect(t, events)
		requireClosed(t, aborted)
	})
}

// collect drains events, failing if the channel is not closed in time.
func collect(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()

	var got []domain.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, event)
		case <-timeout:
			t.Fatal("event channel was not closed")
			return nil
		}
	}
}

func requireClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("backend request still open after cancellation")
	}
}
