package domain

import (
	"math"
	"sync/atomic"
	"time"
)

const errorRatePrecision = 10000 // four decimal places

// RequestMetrics holds the process-lifetime request and error counters.
// All methods are safe for concurrent use.
type RequestMetrics struct {
	startTime time.Time
	requests  atomic.Int64
	errors    atomic.Int64
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	Uptime        time.Duration
	TotalRequests int64
	TotalErrors   int64
	ErrorRate     float64
}

// NewRequestMetrics starts the counters at zero (DI constructor).
func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{startTime: time.Now()}
}

// StartTime returns when the counters were created.
func (m *RequestMetrics) StartTime() time.Time {
	return m.startTime
}

// IncRequests records an inbound completion request.
func (m *RequestMetrics) IncRequests() {
	m.requests.Add(1)
}

// IncErrors records a failed completion request.
func (m *RequestMetrics) IncErrors() {
	m.errors.Add(1)
}

// Snapshot reads the counters. ErrorRate is rounded to four decimal places
// and is zero before the first request.
func (m *RequestMetrics) Snapshot() MetricsSnapshot {
	requests := m.requests.Load()
	errs := m.errors.Load()

	rate := 0.0
	if requests > 0 {
		rate = math.Round(float64(errs)/float64(requests)*errorRatePrecision) / errorRatePrecision
	}

	return MetricsSnapshot{
		Uptime:        time.Since(m.startTime),
		TotalRequests: requests,
		TotalErrors:   errs,
		ErrorRate:     rate,
	}
}
