package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service exports. Each instance owns its
// registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	Transitions       *prometheus.CounterVec
	DuplicateReports  *prometheus.CounterVec
	Activations       *prometheus.CounterVec
	RetriesExhausted  prometheus.Counter
	WorkflowsFinished *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	ReapedSteps       prometheus.Counter
	ActivationLatency prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "step_transitions_total",
			Help:      "Progress status transitions applied, by source and target status.",
		}, []string{"from", "to"}),
		DuplicateReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "duplicate_reports_total",
			Help:      "Callbacks for steps that were already settled.",
		}, []string{"kind"}),
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "step_activations_total",
			Help:      "Trigger gateway calls, by outcome.",
		}, []string{"outcome"}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "retries_exhausted_total",
			Help:      "Steps that spent their retry budget.",
		}),
		WorkflowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "workflows_finished_total",
			Help:      "Workflows that reached a terminal overall status.",
		}, []string{"status"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "notifications_total",
			Help:      "Operator alerts, by type and outcome.",
		}, []string{"type", "outcome"}),
		ReapedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "reaped_steps_total",
			Help:      "In-progress steps failed by the stale-step sweep.",
		}),
		ActivationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stepflow",
			Name:      "activation_duration_seconds",
			Help:      "Time spent handing a step to the agent.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.Transitions,
		m.DuplicateReports,
		m.Activations,
		m.RetriesExhausted,
		m.WorkflowsFinished,
		m.Notifications,
		m.ReapedSteps,
		m.ActivationLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
