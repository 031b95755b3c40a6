// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the assistant
// gateway.
//
// # Description
//
// Metrics cover the request pipeline end to end:
//   - Request counters by dispatch branch and status
//   - Intent classification counters
//   - Rate limiter rejections
//   - Trap warnings surfaced
//   - Streaming latency (time to first event, total duration)
//   - Active stream gauge and provider retry counters
//
// # Integration
//
// Exposed via the /metrics endpoint. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "stationwise"
	gatewaySubsystem = "assistant"
)

// Branch labels the dispatch path a request took.
type Branch string

const (
	BranchTool Branch = "tool"
	BranchRule Branch = "rule"
	BranchLLM  Branch = "llm"
)

// GatewayMetrics holds all Prometheus metrics for the assistant endpoint.
// Initialize once at startup via InitMetrics().
type GatewayMetrics struct {
	// RequestsTotal counts assistant requests.
	// Labels: branch (tool, rule, llm), status (success, error, rejected)
	RequestsTotal *prometheus.CounterVec

	// IntentsTotal counts classifier outcomes. Labels: intent
	IntentsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the limiter.
	RateLimitedTotal prometheus.Counter

	// TrapWarningsTotal counts trap warnings surfaced to clients.
	TrapWarningsTotal prometheus.Counter

	// TimeToFirstEventSeconds measures latency to the first SSE frame.
	// Labels: provider
	TimeToFirstEventSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: provider, status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open SSE connections. Labels: provider
	ActiveStreams *prometheus.GaugeVec

	// ProviderRetriesTotal counts upstream connect retries. Labels: provider
	ProviderRetriesTotal *prometheus.CounterVec

	// ErrorsTotal counts error envelopes returned. Labels: code
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics creates and registers all gateway metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = &GatewayMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total assistant requests by dispatch branch and status",
			},
			[]string{"branch", "status"},
		),

		IntentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "intents_total",
				Help:      "Total classifier outcomes by intent",
			},
			[]string{"intent"},
		),

		RateLimitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),

		TrapWarningsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "trap_warnings_total",
				Help:      "Total trap warnings surfaced to clients",
			},
		),

		TimeToFirstEventSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "time_to_first_event_seconds",
				Help:      "Time from request to first SSE frame in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open SSE connections",
			},
			[]string{"provider"},
		),

		ProviderRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "provider_retries_total",
				Help:      "Total upstream connect retries by provider",
			},
			[]string{"provider"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "errors_total",
				Help:      "Total error envelopes returned by code",
			},
			[]string{"code"},
		),
	}
	return DefaultMetrics
}

// RecordRequest records a completed request on one dispatch branch.
func (m *GatewayMetrics) RecordRequest(branch Branch, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(branch), status).Inc()
}

// RecordIntent records one classifier outcome.
func (m *GatewayMetrics) RecordIntent(intent string) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(intent).Inc()
}

// RecordRateLimited records one limiter rejection.
func (m *GatewayMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordTrapWarnings records warnings surfaced on one request.
func (m *GatewayMetrics) RecordTrapWarnings(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.TrapWarningsTotal.Add(float64(count))
}

// RecordError records one error envelope by contract code.
func (m *GatewayMetrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *GatewayMetrics) StreamStarted(provider string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(provider).Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *GatewayMetrics) StreamEnded(provider string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(provider).Dec()
}

// RecordTimeToFirstEvent records the first-frame latency of a stream.
func (m *GatewayMetrics) RecordTimeToFirstEvent(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.TimeToFirstEventSeconds.WithLabelValues(provider).Observe(seconds)
}

// RecordStreamDuration records the total duration of a finished stream.
func (m *GatewayMetrics) RecordStreamDuration(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StreamDurationSeconds.WithLabelValues(provider, status).Observe(seconds)
}

// RecordProviderRetry records one upstream connect retry.
func (m *GatewayMetrics) RecordProviderRetry(provider string) {
	if m == nil {
		return
	}
	m.ProviderRetriesTotal.WithLabelValues(provider).Inc()
}
