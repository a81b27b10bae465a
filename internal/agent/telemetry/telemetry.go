package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/ava/config"
	"github.com/mohammad-safakhou/ava/internal/agent/middleware"
)

// Telemetry exposes turn and middleware metrics on a dedicated registry.
// With telemetry disabled every recorder is a no-op and the handler serves
// an empty registry.
type Telemetry struct {
	enabled  bool
	registry *prometheus.Registry

	turns           *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	middlewareEvent *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
}

// New creates a telemetry instance and registers its collectors.
func New(cfg config.TelemetryConfig) *Telemetry {
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		enabled:  cfg.Enabled,
		registry: registry,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ava_turns_total",
			Help: "Agent turns processed, by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ava_turn_duration_seconds",
			Help:    "Wall-clock duration of one agent turn.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		middlewareEvent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ava_middleware_events_total",
			Help: "Middleware events emitted during turns, by middleware and status.",
		}, []string{"middleware", "status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ava_tool_calls_total",
			Help: "Tool invocations requested by the model, by tool.",
		}, []string{"tool"}),
	}
	if cfg.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			t.turns,
			t.turnDuration,
			t.middlewareEvent,
			t.toolCalls,
		)
	}
	return t
}

// RecordTurn records one completed turn.
func (t *Telemetry) RecordTurn(d time.Duration, success bool) {
	if t == nil || !t.enabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.turns.WithLabelValues(outcome).Inc()
	t.turnDuration.Observe(d.Seconds())
}

// RecordEvents counts the middleware events collected during one turn.
func (t *Telemetry) RecordEvents(events []middleware.Event) {
	if t == nil || !t.enabled {
		return
	}
	for _, e := range events {
		t.middlewareEvent.WithLabelValues(e.Middleware, e.Status).Inc()
	}
}

// RecordToolCall counts one tool invocation request.
func (t *Telemetry) RecordToolCall(tool string) {
	if t == nil || !t.enabled {
		return
	}
	t.toolCalls.WithLabelValues(tool).Inc()
}

// Handler serves the /metrics endpoint for this registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
