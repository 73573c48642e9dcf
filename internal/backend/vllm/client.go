// Package vllm implements domain.Backend against a vLLM server speaking the
// Chat Completions protocol.
package vllm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	healthPath          = "/health"

	modeBuffered  = "buffered"
	modeStreaming = "streaming"

	maxErrorBodySize = 4096
)

// Client owns the shared outbound connection pool to the backend.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	cfg     Config

	mu         sync.Mutex
	httpClient *http.Client
	closed     bool
}

// NewClient creates a new backend client. The connection pool is created on first use.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base URL is required")
	}

	return &Client{
		baseURL: baseURL,
		cfg:     cfg.withDefaults(),
	}, nil
}

// session returns the shared HTTP client, creating it on first call.
func (c *Client) session() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("backend client is closed")
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{
			Timeout:   c.cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		transport.TLSHandshakeTimeout = c.cfg.ConnectTimeout

		// Per-call deadlines come from the request context; streams have none.
		c.httpClient = &http.Client{Transport: transport}
	}

	return c.httpClient, nil
}

// Probe reports whether the backend answers its health endpoint with 2xx.
// It never returns an error.
func (c *Client) Probe(ctx context.Context) bool {
	logger := observability.FromContext(ctx)

	client, err := c.session()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("backend probe failed", observability.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Generate performs a buffered completion bounded by the request timeout.
func (c *Client) Generate(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.post(ctx, req, false)
	if err != nil {
		recordBackendCall(modeBuffered, err, start)
		return nil, err
	}
	defer resp.Body.Close()

	var payload chatCompletionResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		err = fmt.Errorf("failed to decode backend response: %w", err)
		recordBackendCall(modeBuffered, err, start)
		return nil, err
	}

	if len(payload.Choices) == 0 {
		err = errors.New("backend response has no choices")
		recordBackendCall(modeBuffered, err, start)
		return nil, err
	}

	result := toResult(&payload)
	recordBackendCall(modeBuffered, nil, start)

	logger.Debug("backend generation finished",
		observability.String("finish_reason", result.FinishReason),
		observability.Int("completion_tokens", result.Usage.CompletionTokens),
		observability.Duration("latency", time.Since(start)),
	)

	return result, nil
}

// GenerateStream opens a streaming completion. The returned channel is
// single-consumer and is closed when the backend finishes, the stream breaks,
// or ctx is cancelled. Keep-alive events flow from the moment of the call,
// including while the backend has yet to send response headers. Failures to
// open the stream arrive as an error event. Cancelling ctx aborts the
// backend call.
func (c *Client) GenerateStream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if _, err := c.session(); err != nil {
		return nil, err
	}

	out := make(chan domain.StreamEvent)
	go c.stream(ctx, req, out)

	return out, nil
}

type openResult struct {
	resp *http.Response
	err  error
}

// stream waits for response headers while emitting keep-alives, then
// forwards the reframed body.
func (c *Client) stream(ctx context.Context, req *domain.CompletionRequest, out chan<- domain.StreamEvent) {
	defer close(out)

	start := time.Now()
	opened := make(chan openResult, 1)
	go func() {
		resp, err := c.post(ctx, req, true)
		opened <- openResult{resp: resp, err: err}
	}()

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	var result openResult
	for waiting := true; waiting; {
		select {
		case result = <-opened:
			waiting = false
		case <-ticker.C:
			if !send(ctx, out, domain.StreamEvent{KeepAlive: true}) {
				go discardLate(opened)
				return
			}
		case <-ctx.Done():
			go discardLate(opened)
			return
		}
	}
	ticker.Stop()

	recordBackendCall(modeStreaming, result.err, start)
	if result.err != nil {
		send(ctx, out, domain.StreamEvent{Err: result.err})
		return
	}

	for event := range NewReframer(result.resp.Body, c.cfg.KeepAliveInterval).Events(ctx) {
		if !send(ctx, out, event) {
			return
		}
	}
}

// discardLate closes the body of a response that arrived after the caller left.
func discardLate(opened <-chan openResult) {
	if result := <-opened; result.resp != nil {
		_ = result.resp.Body.Close()
	}
}

// Close releases pooled connections. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	return nil
}

// post sends the chat request and returns a 2xx response with an open body.
func (c *Client) post(ctx context.Context, req *domain.CompletionRequest, stream bool) (*http.Response, error) {
	client, err := c.session()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(toChatRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backend request: %w", err)
	}

	url := c.baseURL + chatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if requestID := observability.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-Id", requestID)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &domain.BackendUnreachableError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		observability.FromContext(ctx).Error("backend returned error status",
			observability.Int("status", resp.StatusCode),
			observability.String("body", string(raw)),
		)

		return nil, &domain.BackendError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return resp, nil
}

func recordBackendCall(mode string, err error, start time.Time) {
	outcome := "success"
	var unreachable *domain.BackendUnreachableError
	var backendErr *domain.BackendError
	switch {
	case err == nil:
	case errors.As(err, &unreachable):
		outcome = "unreachable"
	case errors.As(err, &backendErr):
		outcome = "backend_error"
	default:
		outcome = "error"
	}

	observability.BackendRequestsTotal.WithLabelValues(mode, outcome).Inc()
	observability.BackendLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
