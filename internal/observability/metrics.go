package observability

import "github.com/prometheus/client_golang/prometheus"

// InferenceBuckets covers latencies from sub-second probes up to the
// five minute long-context ceiling.
//
//nolint:gochecknoglobals // Prometheus collectors are process-wide
var InferenceBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

//nolint:gochecknoglobals // Prometheus collectors are process-wide
var (
	// HTTPRequestsTotal counts inbound HTTP requests by path and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_http_requests_total",
			Help: "Total inbound HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration records inbound request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ember_http_request_duration_seconds",
			Help:    "Inbound HTTP request duration",
			Buckets: InferenceBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_http_requests_in_flight",
			Help: "Inbound HTTP requests currently being served",
		},
	)

	// StreamingConnections tracks active SSE streams to callers.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// BackendRequestsTotal counts calls to the inference backend by mode and outcome.
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_backend_requests_total",
			Help: "Backend requests",
		},
		[]string{"mode", "outcome"},
	)

	// BackendLatency records time until the backend answered (headers for streams).
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ember_backend_latency_seconds",
			Help:    "Backend latency",
			Buckets: InferenceBuckets,
		},
		[]string{"mode"},
	)

	// TokensTotal counts prompt and completion tokens reported by the backend.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_tokens_total",
			Help: "Token count reported by the backend",
		},
		[]string{"direction"},
	)

	// CostUSDTotal accumulates the priced cost of buffered completions.
	CostUSDTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_cost_usd_total",
			Help: "Priced cost of completions in USD",
		},
	)

	// KeepAlivesTotal counts keep-alive comments written to streaming callers.
	KeepAlivesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_stream_keepalives_total",
			Help: "Keep-alive signals sent to streaming callers",
		},
	)

	// StreamDecodeErrorsTotal counts malformed backend stream lines that were discarded.
	StreamDecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_stream_decode_errors_total",
			Help: "Malformed backend stream lines discarded",
		},
	)

	// CacheLookupsTotal counts response cache lookups by result (hit, miss, error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_cache_lookups_total",
			Help: "Response cache lookups",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		StreamingConnections,
		BackendRequestsTotal,
		BackendLatency,
		TokensTotal,
		CostUSDTotal,
		KeepAlivesTotal,
		StreamDecodeErrorsTotal,
		CacheLookupsTotal,
	)
}
