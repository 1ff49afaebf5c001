// Package telemetry exposes Prometheus collectors for provider calls and
// the HTTP surface.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "modelcompare"

// Metrics holds every collector. A nil *Metrics is a valid no-op.
type Metrics struct {
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	providerCost    *prometheus.CounterVec
	providerTokens  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider call duration in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"provider", "model"},
		),
		providerCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_cost_dollars_total",
				Help:      "Accumulated estimated cost of successful provider calls.",
			},
			[]string{"provider", "model"},
		),
		providerTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_tokens_total",
				Help:      "Total tokens consumed by successful provider calls.",
			},
			[]string{"provider", "model"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.providerCalls,
		m.providerLatency,
		m.providerCost,
		m.providerTokens,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// ObserveCall records one settled provider call.
func (m *Metrics) ObserveCall(provider, model, status string, latency time.Duration, cost float64, tokens int) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, model, status).Inc()
	m.providerLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
	if cost > 0 {
		m.providerCost.WithLabelValues(provider, model).Add(cost)
	}
	if tokens > 0 {
		m.providerTokens.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// ObserveHTTP records one served request. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
