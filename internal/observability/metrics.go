package observability

import (
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the in-process counters/histograms of a running
// `start` process, exposed through Handler; the `metrics` CLI command does
// not read them. Grounded on the teacher's CounterVec/HistogramVec
// shapes (pkg/observability/metrics.go) but naming iteration/dispatch/
// validation outcomes instead of agent/LLM/tool calls.
type Metrics struct {
	registry *prometheus.Registry

	IterationsTotal prometheus.Counter

	TasksCompleted prometheus.Counter
	TasksBlocked   prometheus.Counter
	TasksRetried   prometheus.Counter

	DispatchDuration *prometheus.HistogramVec // labeled by provider

	ValidationOutcomes *prometheus.CounterVec // labeled by confidence, outcome

	HaltsTotal *prometheus.CounterVec // labeled by reason
}

// NewMetrics builds a fresh, independent registry so test processes never
// collide on the global default registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		IterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supervisor_iterations_total",
			Help: "Number of control-loop iterations executed.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supervisor_tasks_completed_total",
			Help: "Number of tasks committed to completed_tasks.",
		}),
		TasksBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supervisor_tasks_blocked_total",
			Help: "Number of tasks moved to blocked_tasks.",
		}),
		TasksRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supervisor_tasks_retried_total",
			Help: "Number of tasks returned to the retry slot.",
		}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supervisor_dispatch_duration_seconds",
			Help:    "Wall-clock duration of provider dispatch calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ValidationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervisor_validation_outcomes_total",
			Help: "Validation pipeline outcomes by confidence.",
		}, []string{"confidence", "outcome"}),
		HaltsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervisor_halts_total",
			Help: "Halts by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.IterationsTotal, m.TasksCompleted, m.TasksBlocked, m.TasksRetried,
		m.DispatchDuration, m.ValidationOutcomes, m.HaltsTotal,
	)
	return m
}

// ObserveDispatch records a dispatch duration for a provider.
func (m *Metrics) ObserveDispatch(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// Handler exposes the registry for scraping when a metrics listen address
// is configured.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot is a point-in-time read of the in-process counters.
type Snapshot struct {
	Iterations     float64
	TasksCompleted float64
	TasksBlocked   float64
	TasksRetried   float64
}

// Gather reads the current counter values.
func (m *Metrics) Gather() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Iterations:     counterValue(m.IterationsTotal),
		TasksCompleted: counterValue(m.TasksCompleted),
		TasksBlocked:   counterValue(m.TasksBlocked),
		TasksRetried:   counterValue(m.TasksRetried),
	}
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
