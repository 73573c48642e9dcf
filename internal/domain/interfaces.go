package domain

import "context"

// Backend is the downstream inference service.
type Backend interface {
	// Probe reports whether the backend is answering. It never returns an error.
	Probe(ctx context.Context) bool

	// Generate runs a buffered completion and returns the assembled result.
	Generate(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// GenerateStream runs a streamed completion. The returned channel is
	// single-consumer and forward-only; it is closed when the backend finishes,
	// fails, or ctx is cancelled. A failure to open the stream may be returned
	// directly or delivered as the first event. Cancelling ctx aborts the
	// backend call.
	GenerateStream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)

	// Close releases the outbound connection. Safe to call more than once.
	Close() error
}

// ResponseCache stores buffered results of deterministic requests.
type ResponseCache interface {
	// Get returns the cached result or ErrCacheMiss.
	Get(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Set stores a result for the request.
	Set(ctx context.Context, req *CompletionRequest, result *CompletionResult) error
}

// StreamSink receives the caller-facing stream. Implementations write SSE frames.
type StreamSink interface {
	WriteChunk(chunk *ChatCompletionChunk) error
	WriteKeepAlive() error
	WriteDone() error
	WriteError(envelope ErrorEnvelope) error
}
