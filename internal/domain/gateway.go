package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/davidbz/ember/internal/observability"
)

// HealthReport is the process-health view served to load balancers and aggregators.
type HealthReport struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	TotalRequests int64   `json:"total_requests"`
	ErrorRate     float64 `json:"error_rate"`
	VLLMConnected bool    `json:"vllm_connected"`
}

// GatewayService orchestrates completion requests against the backend.
type GatewayService struct {
	backend Backend
	metrics *RequestMetrics
	costs   *CostCalculator
	cache   ResponseCache
	now     func() time.Time
}

// NewGatewayService creates a new gateway service (DI constructor).
// cache may be nil to disable response caching.
func NewGatewayService(
	backend Backend,
	metrics *RequestMetrics,
	costs *CostCalculator,
	cache ResponseCache,
) *GatewayService {
	return &GatewayService{
		backend: backend,
		metrics: metrics,
		costs:   costs,
		cache:   cache,
		now:     time.Now,
	}
}

// BeginRequest counts an inbound completion request and returns its identifier.
func (g *GatewayService) BeginRequest() string {
	g.metrics.IncRequests()
	return observability.GenerateCompletionID()
}

// Complete handles a buffered completion request.
func (g *GatewayService) Complete(
	ctx context.Context,
	requestID string,
	req *CompletionRequest,
) (*ChatCompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)

	result, err := g.generate(ctx, req)
	if err != nil {
		g.metrics.IncErrors()
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	cost := g.costs.Calculate(result.Usage)
	observability.TokensTotal.WithLabelValues("prompt").Add(float64(result.Usage.PromptTokens))
	observability.TokensTotal.WithLabelValues("completion").Add(float64(result.Usage.CompletionTokens))
	observability.CostUSDTotal.Add(cost)

	logger.Info("completion succeeded",
		observability.String("finish_reason", result.FinishReason),
		observability.Int("tokens", result.Usage.TotalTokens),
		observability.Float64("cost", cost),
	)

	return NewChatCompletionResponse(requestID, g.now().Unix(), req.Model, result), nil
}

// generate serves a buffered result from cache when possible, otherwise from the backend.
func (g *GatewayService) generate(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	logger := observability.FromContext(ctx)

	useCache := g.cache != nil && Cacheable(req)
	if useCache {
		cached, err := g.cache.Get(ctx, req)
		switch {
		case err == nil && cached != nil:
			observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
			logger.Info("cache HIT - returning cached result")
			return cached, nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			observability.CacheLookupsTotal.WithLabelValues("error").Inc()
			logger.Warn("cache get failed, continuing without cache", observability.Error(err))
		default:
			observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	result, err := g.backend.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if useCache {
		if setErr := g.cache.Set(ctx, req, result); setErr != nil {
			logger.Warn("failed to store in cache", observability.Error(setErr))
		}
	}

	return result, nil
}

// Stream pumps a streamed completion into sink. The sink must already be
// established with the caller. Content after the terminal chunk is dropped, a
// terminal chunk is synthesized if the backend ends without one, and the done
// marker is written last. On a backend failure the error envelope is written
// instead of the done marker.
func (g *GatewayService) Stream(
	ctx context.Context,
	requestID string,
	req *CompletionRequest,
	sink StreamSink,
) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	events, err := g.backend.GenerateStream(ctx, req)
	if err != nil {
		return g.failStream(ctx, sink, fmt.Errorf("failed to start stream: %w", err))
	}

	created := g.now().Unix()
	terminated := false
	written := 0

	for event := range events {
		if event.Err != nil {
			return g.failStream(ctx, sink, fmt.Errorf("stream interrupted: %w", event.Err))
		}

		if event.KeepAlive {
			if writeErr := sink.WriteKeepAlive(); writeErr != nil {
				return fmt.Errorf("failed to write keep-alive: %w", writeErr)
			}
			observability.KeepAlivesTotal.Inc()
			continue
		}

		if terminated {
			logger.Debug("dropping content received after terminal chunk")
			continue
		}

		chunk := NewChatCompletionChunk(requestID, created, req.Model, event.Content, event.FinishReason)
		if written == 0 {
			chunk.Choices[0].Delta.Role = RoleAssistant
		}
		if writeErr := sink.WriteChunk(chunk); writeErr != nil {
			return fmt.Errorf("failed to write chunk: %w", writeErr)
		}
		written++

		terminated = event.IsTerminal()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("caller went away before stream finished", observability.Error(ctxErr))
		return fmt.Errorf("stream aborted: %w", ctxErr)
	}

	if !terminated {
		logger.Warn("backend stream ended without finish reason, closing with stop")
		chunk := NewChatCompletionChunk(requestID, created, req.Model, "", FinishReasonStop)
		if written == 0 {
			chunk.Choices[0].Delta.Role = RoleAssistant
		}
		if writeErr := sink.WriteChunk(chunk); writeErr != nil {
			return fmt.Errorf("failed to write terminal chunk: %w", writeErr)
		}
	}

	if writeErr := sink.WriteDone(); writeErr != nil {
		return fmt.Errorf("failed to write done marker: %w", writeErr)
	}

	logger.Info("stream completed")
	return nil
}

func (g *GatewayService) failStream(ctx context.Context, sink StreamSink, err error) error {
	logger := observability.FromContext(ctx)

	if ctx.Err() != nil {
		logger.Info("stream aborted by caller", observability.Error(err))
		return err
	}

	g.metrics.IncErrors()
	logger.Error("stream failed", observability.Error(err))

	if writeErr := sink.WriteError(InternalErrorEnvelope()); writeErr != nil {
		logger.Warn("failed to write stream error event", observability.Error(writeErr))
	}
	return err
}

// Health probes the backend and reads the request counters.
func (g *GatewayService) Health(ctx context.Context) HealthReport {
	snapshot := g.metrics.Snapshot()

	return HealthReport{
		Status:        "healthy",
		UptimeSeconds: math.Round(snapshot.Uptime.Seconds()*100) / 100,
		TotalRequests: snapshot.TotalRequests,
		ErrorRate:     snapshot.ErrorRate,
		VLLMConnected: g.backend.Probe(ctx),
	}
}
