// Package metrics implements the operational counters named in spec §6
// ("GET /metrics: exposition of operational counters") as real
// prometheus/client_golang collectors, per SPEC_FULL.md's "Supplemented
// features" §2. Grounded on the teacher's
// pkg/gateway/metrics-shaped usage (test/unit/gateway/middleware/
// http_metrics_test.go): a struct of collectors built against an injectable
// *prometheus.Registry so tests get isolated registries instead of fighting
// the global default one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector spec §6 names.
type Metrics struct {
	AlertsReceivedTotal   prometheus.Counter
	WorkflowRunsTotal     *prometheus.CounterVec
	AgentIterationsTotal  prometheus.Counter
	ToolInvocationsTotal  *prometheus.CounterVec
	QueueDepth            prometheus.Gauge
	StepDuration          *prometheus.HistogramVec
	AgentIterationLatency prometheus.Histogram
	SinkDeliveryTotal     *prometheus.CounterVec
}

// New registers and returns the default, process-global Metrics.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector against reg, so callers (tests
// in particular) can use an isolated *prometheus.Registry rather than the
// package-global default, avoiding duplicate-registration panics across
// test cases.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_received_total",
			Help: "Total number of alerts accepted by the ingress dispatcher.",
		}),
		WorkflowRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Total number of workflow runs, by terminal phase.",
		}, []string{"phase"}),
		AgentIterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_iterations_total",
			Help: "Total number of agent reasoning-loop iterations executed.",
		}),
		ToolInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Total number of tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workflow_engine_queue_depth",
			Help: "Current number of workflow runs waiting in the engine queue.",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_step_duration_seconds",
			Help:    "Step execution duration in seconds, by step kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		AgentIterationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_iteration_duration_seconds",
			Help:    "Duration of a single agent reasoning-loop iteration.",
			Buckets: prometheus.DefBuckets,
		}),
		SinkDeliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sink_delivery_total",
			Help: "Total number of sink delivery attempts, by sink type and outcome.",
		}, []string{"sink_type", "outcome"}),
	}

	reg.MustRegister(
		m.AlertsReceivedTotal,
		m.WorkflowRunsTotal,
		m.AgentIterationsTotal,
		m.ToolInvocationsTotal,
		m.QueueDepth,
		m.StepDuration,
		m.AgentIterationLatency,
		m.SinkDeliveryTotal,
	)

	return m
}

// ObserveStepDuration records a step's wall-clock duration under its kind label.
func (m *Metrics) ObserveStepDuration(kind string, d time.Duration) {
	m.StepDuration.WithLabelValues(kind).Observe(d.Seconds())
}
