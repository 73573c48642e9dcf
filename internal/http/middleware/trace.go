package middleware

import (
	"net/http"
	"strings"

	"github.com/davidbz/ember/internal/observability"
)

const (
	requestIDHeader   = "X-Request-Id"
	traceIDHeader     = "X-Trace-Id"
	traceparentHeader = "Traceparent"

	maxInboundRequestIDLength = 128
)

// Trace tags every request with a trace ID, a span ID and a request ID.
// An inbound X-Request-Id is kept when it is printable ASCII of reasonable
// length, and the trace ID of a W3C traceparent header is continued.
// Handlers may later rename the request with observability.WithRequestID;
// the "request started" line keeps the original ID.
func Trace() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID, ok := parentTraceID(r.Header.Get(traceparentHeader))
			if !ok {
				traceID = observability.GenerateTraceID()
			}

			requestID := r.Header.Get(requestIDHeader)
			if !acceptableRequestID(requestID) {
				requestID = observability.GenerateRequestID()
			}

			ctx := observability.WithTraceID(r.Context(), traceID)
			ctx = observability.WithSpanID(ctx, observability.GenerateSpanID())
			ctx = observability.WithRequestID(ctx, requestID)

			w.Header().Set(traceIDHeader, traceID)
			w.Header().Set(requestIDHeader, requestID)

			observability.FromContext(ctx).Info("request started",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxInboundRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// parentTraceID extracts the trace ID from "version-traceid-parentid-flags".
func parentTraceID(header string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return "", false
	}
	traceID := strings.ToLower(parts[1])
	if strings.Trim(traceID, "0") == "" || strings.Trim(traceID, "0123456789abcdef") != "" {
		return "", false
	}
	return traceID, true
}
