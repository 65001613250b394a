// Package observability exposes the Dispatch Engine's pull-only metrics,
// audit log, and envelope-to-trace correlation helpers (spec §4.7).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the engine exposes, labeled
// per spec §4.7 with queue, worker, task-def, workflow, state, and reason
// as applicable. Registered against a caller-supplied registry so tests
// can use a throwaway registry instead of the global default.
type Metrics struct {
	EnvelopesEnqueued   *prometheus.CounterVec
	EnvelopesDispatched *prometheus.CounterVec
	EnvelopesTerminal   *prometheus.CounterVec

	QueueDepth      *prometheus.GaugeVec
	ActiveWorkers   *prometheus.GaugeVec
	ActiveLeases    *prometheus.GaugeVec
	WorkflowsActive *prometheus.GaugeVec

	DispatchLatency *prometheus.HistogramVec
	ExecutionLatency *prometheus.HistogramVec
}

// NewMetrics registers the Dispatch Engine's metric families against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EnvelopesEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "envelopes_enqueued_total",
			Help:      "Total envelopes accepted onto a queue.",
		}, []string{"queue"}),

		EnvelopesDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "envelopes_dispatched_total",
			Help:      "Total envelopes leased out to a worker.",
		}, []string{"queue", "worker"}),

		EnvelopesTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "envelopes_terminal_total",
			Help:      "Total envelopes reaching a terminal state.",
		}, []string{"queue", "state", "reason"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "queue_depth",
			Help:      "Current number of envelopes waiting on a queue.",
		}, []string{"queue"}),

		ActiveWorkers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "active_workers",
			Help:      "Current number of registered workers.",
		}, []string{"task-def"}),

		ActiveLeases: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "active_leases",
			Help:      "Current number of outstanding leases.",
		}, []string{"worker"}),

		WorkflowsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "workflows_active",
			Help:      "Current number of workflow instances not yet completed.",
		}, []string{"workflow"}),

		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "dispatch_latency_seconds",
			Help:      "Time between an envelope becoming ready and being leased.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),

		ExecutionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "execution_latency_seconds",
			Help:      "Time a worker spent executing a leased envelope.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "state"}),
	}
}
