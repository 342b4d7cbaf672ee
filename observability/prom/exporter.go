// Package prom implements observability.Metrics with the Prometheus client
// library and exposes it on an HTTP handler.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KamdynS/weather-agents/observability"
)

const namespace = "weather_agents"

// Exporter owns a private Prometheus registry so several exporters can live
// in one process (tests) without duplicate registration panics.
type Exporter struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	tokens    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	toolCalls *prometheus.CounterVec
	toolTime  *prometheus.HistogramVec
	routes    *prometheus.CounterVec
	fanout    prometheus.Histogram
}

// New creates an exporter with Go runtime and process collectors attached.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total", Help: "Handled requests.",
		}, []string{"route", "method", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_latency_seconds", Help: "Request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total", Help: "Tokens used by the language model.",
		}, []string{"direction", "model"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total", Help: "Errors by type.",
		}, []string{"type"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_calls_total", Help: "Open-Meteo tool calls by capability and outcome.",
		}, []string{"capability", "outcome"}),
		toolTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_call_seconds", Help: "Tool call latency.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"capability"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "route_outcomes_total", Help: "Terminal router states.",
		}, []string{"state"}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "route_specialists", Help: "Specialists invoked per routed query.",
			Buckets: []float64{0, 1, 2, 3, 4},
		}),
	}
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		e.requests, e.latency, e.tokens, e.errors, e.toolCalls, e.toolTime, e.routes, e.fanout,
	)
	return e
}

// Handler returns the /metrics handler for this exporter.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, e.g. for gathering in tests.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

func (e *Exporter) IncrementRequests(labels map[string]string) {
	e.requests.WithLabelValues(labels["route"], labels["method"], labels["status_code"]).Inc()
}

func (e *Exporter) RecordLatency(d time.Duration, labels map[string]string) {
	route := labels["route"]
	if route == "" {
		route = labels["tool_name"]
	}
	e.latency.WithLabelValues(route).Observe(d.Seconds())
}

func (e *Exporter) IncrementTokensUsed(tokens int, labels map[string]string) {
	e.tokens.WithLabelValues(labels["direction"], labels["model"]).Add(float64(tokens))
}

func (e *Exporter) RecordError(errorType string, _ map[string]string) {
	e.errors.WithLabelValues(errorType).Inc()
}

func (e *Exporter) RecordToolCall(capability, outcome string, d time.Duration) {
	e.toolCalls.WithLabelValues(capability, outcome).Inc()
	e.toolTime.WithLabelValues(capability).Observe(d.Seconds())
}

func (e *Exporter) RecordRoute(state string, specialists int) {
	e.routes.WithLabelValues(state).Inc()
	if state == "routed" {
		e.fanout.Observe(float64(specialists))
	}
}

var _ observability.Metrics = (*Exporter)(nil)
