package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the animation services.
type Metrics struct {
	registry         *prometheus.Registry
	turnsTotal       *prometheus.CounterVec
	rendersTotal     prometheus.Counter
	renderErrors     prometheus.Counter
	scriptRejections prometheus.Counter
	modificationsBy  *prometheus.CounterVec
	requestsTotal    prometheus.Counter
	requestErrors    prometheus.Counter
}

// New creates and registers the Prometheus metrics for a service.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animation_turns_total",
		Help: "Conversation turns processed, labeled by terminal state",
	}, []string{"state"})
	rendersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animation_renders_total",
		Help: "Render requests that completed successfully",
	})
	renderErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animation_render_errors_total",
		Help: "Render requests that failed",
	})
	scriptRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animation_script_rejections_total",
		Help: "Scripts rejected by the validator",
	})
	modificationsBy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animation_modifications_total",
		Help: "Modification analyses, labeled by source (llm or heuristic)",
	}, []string{"source"})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests handled",
	})
	requestErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "HTTP requests answered with status >= 400",
	})

	prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry).MustRegister(
		turnsTotal,
		rendersTotal,
		renderErrors,
		scriptRejections,
		modificationsBy,
		requestsTotal,
		requestErrors,
	)

	return &Metrics{
		registry:         registry,
		turnsTotal:       turnsTotal,
		rendersTotal:     rendersTotal,
		renderErrors:     renderErrors,
		scriptRejections: scriptRejections,
		modificationsBy:  modificationsBy,
		requestsTotal:    requestsTotal,
		requestErrors:    requestErrors,
	}
}

// TurnFinished records a completed conversation turn with its terminal state.
func (m *Metrics) TurnFinished(state string) { m.turnsTotal.WithLabelValues(state).Inc() }

// RenderSucceeded records a successful render round-trip.
func (m *Metrics) RenderSucceeded() { m.rendersTotal.Inc() }

// RenderFailed records a failed render round-trip.
func (m *Metrics) RenderFailed() { m.renderErrors.Inc() }

// ScriptRejected records a validator rejection.
func (m *Metrics) ScriptRejected() { m.scriptRejections.Inc() }

// ModificationAnalyzed records a modification analysis and its provenance.
func (m *Metrics) ModificationAnalyzed(source string) {
	m.modificationsBy.WithLabelValues(source).Inc()
}

// Handler returns an http.Handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
