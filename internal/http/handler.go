package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// Handler handles HTTP requests.
type Handler struct {
	gateway   *domain.GatewayService
	validator *domain.Validator
	catalog   *domain.Catalog
	metrics   http.Handler
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	gateway *domain.GatewayService,
	validator *domain.Validator,
	catalog *domain.Catalog,
) *Handler {
	return &Handler{
		gateway:   gateway,
		validator: validator,
		catalog:   catalog,
		metrics:   promhttp.Handler(),
	}
}

// HandleChatCompletions processes chat completion requests in buffered or streaming mode.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Early validation.
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.validator.Decode(r.Body)
	if err != nil {
		logger := observability.FromContext(ctx)

		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			logger.Info("request rejected", observability.Error(err))
			writeJSON(ctx, w, http.StatusUnprocessableEntity, domain.ValidationErrorEnvelope(validationErr))
			return
		}

		logger.Error("failed to validate request", observability.Error(err))
		writeJSON(ctx, w, http.StatusInternalServerError, domain.InternalErrorEnvelope())
		return
	}

	requestID := h.gateway.BeginRequest()
	httpRequestID := observability.GetRequestID(ctx)

	// The completion ID replaces the transport request ID for the rest of
	// the request, including the outer middleware's "request finished" line.
	ctx = observability.WithRequestID(ctx, requestID)
	ctx = observability.WithModel(ctx, req.Model)

	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		observability.String("http_request_id", httpRequestID),
		observability.Bool("stream", req.Stream),
		observability.Int("messages", len(req.Messages)),
		observability.Int("max_tokens", req.MaxTokens),
	)

	if req.Stream {
		sink, sinkErr := newSSEWriter(w)
		if sinkErr != nil {
			logger.Error("streaming not supported", observability.Error(sinkErr))
			writeJSON(ctx, w, http.StatusInternalServerError, domain.InternalErrorEnvelope())
			return
		}

		sink.open(requestID)

		// Failures are already reported to the caller inside the stream.
		if streamErr := h.gateway.Stream(ctx, requestID, req, sink); streamErr != nil {
			logger.Debug("stream ended with error", observability.Error(streamErr))
		}
		return
	}

	w.Header().Set(requestIDHeader, requestID)

	response, err := h.gateway.Complete(ctx, requestID, req)
	if err != nil {
		logger.Error("completion failed", observability.Error(err))
		writeJSON(ctx, w, http.StatusInternalServerError, domain.InternalErrorEnvelope())
		return
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

// HandleModels serves the model discovery listing.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, h.catalog.Models())
}

// HandleHealth handles health check requests. It always answers 200; backend
// reachability is reported in the body.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(ctx, w, http.StatusOK, h.gateway.Health(ctx))
}

// HandleMetrics exposes Prometheus metrics.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(ctx).Warn("failed to encode response", observability.Error(err))
	}
}
