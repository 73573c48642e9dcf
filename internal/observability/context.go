package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDBytes = 16 // OpenTelemetry trace ID size in bytes
	spanIDBytes  = 8  // OpenTelemetry span ID size in bytes

	completionIDPrefix    = "chatcmpl-"
	completionIDHexLength = 24
)

const (
	// TraceIDKey holds the OpenTelemetry trace ID.
	TraceIDKey contextKey = "trace_id"

	// SpanIDKey holds the OpenTelemetry span ID.
	SpanIDKey contextKey = "span_id"

	// RequestIDKey holds the unique request identifier.
	RequestIDKey contextKey = "request_id"

	// ModelKey holds the model name for this request.
	ModelKey contextKey = "model"
)

// WithTraceID injects trace ID into context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSpanID injects span ID into context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// requestIdentity is shared by every context derived from the one that
// first received a request ID.
type requestIdentity struct {
	mu sync.RWMutex
	id string
}

func (r *requestIdentity) get() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *requestIdentity) set(id string) {
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

// WithRequestID injects request ID into context. If ctx already carries a
// request ID it is replaced in place, so middleware holding a parent
// context observes the new value.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if holder, ok := ctx.Value(RequestIDKey).(*requestIdentity); ok {
		holder.set(requestID)
		return ctx
	}
	return context.WithValue(ctx, RequestIDKey, &requestIdentity{id: requestID})
}

// WithModel injects model name into context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetTraceID extracts trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetSpanID extracts span ID from context.
func GetSpanID(ctx context.Context) string {
	if spanID, ok := ctx.Value(SpanIDKey).(string); ok {
		return spanID
	}
	return ""
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if holder, ok := ctx.Value(RequestIDKey).(*requestIdentity); ok {
		return holder.get()
	}
	return ""
}

// GetModel extracts model name from context.
func GetModel(ctx context.Context) string {
	if model, ok := ctx.Value(ModelKey).(string); ok {
		return model
	}
	return ""
}

// GenerateTraceID generates an OpenTelemetry-compatible trace ID (32 hex chars).
func GenerateTraceID() string {
	bytes := make([]byte, traceIDBytes)
	if _, err := rand.Read(bytes); err != nil {
		return strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return hex.EncodeToString(bytes)
}

// GenerateSpanID generates an OpenTelemetry-compatible span ID (16 hex chars).
func GenerateSpanID() string {
	bytes := make([]byte, spanIDBytes)
	if _, err := rand.Read(bytes); err != nil {
		return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	}
	return hex.EncodeToString(bytes)
}

// GenerateRequestID generates a unique request identifier (UUID).
func GenerateRequestID() string {
	return uuid.New().String()
}

// GenerateCompletionID returns a chat completion identifier of the form
// "chatcmpl-" followed by 24 lowercase hex characters taken from a random UUID.
func GenerateCompletionID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return completionIDPrefix + raw[:completionIDHexLength]
}
