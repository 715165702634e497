package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides production observability for the executor,
// namespaced "pregel_". Grounded on the teacher's graph/metrics.go
// (PrometheusMetrics, NewPrometheusMetrics, one gauge/histogram/counter
// per concern), relabeled from whole-state-delta terms to superstep/
// channel terms per SPEC_FULL §B:
//
//   - inflight_nodes (gauge): nodes currently executing within a step.
//   - frontier_depth (gauge): work items queued for the next dispatch.
//   - step_latency_ms (histogram): per-node execution duration.
//   - retries_total (counter): retry attempts across all nodes.
//   - merge_conflicts_total (counter): InvalidUpdate occurrences.
//   - interrupts_total (counter): Interrupts raised.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	frontierDepth prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	mergeConflicts *prometheus.CounterVec
	interrupts    *prometheus.CounterVec

	enabled bool
}

// NewPrometheusMetrics registers all executor metrics with registry. A
// nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "pregel",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing within a superstep",
	})
	pm.frontierDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "pregel",
		Name:      "frontier_depth",
		Help:      "Work items queued for the next superstep's dispatch",
	})
	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pregel",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"thread_id", "node"})
	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "retries_total",
		Help:      "Cumulative node retry attempts",
	}, []string{"thread_id", "node"})
	pm.mergeConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "merge_conflicts_total",
		Help:      "InvalidUpdate conflicts detected across concurrent writers",
	}, []string{"thread_id", "field"})
	pm.interrupts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "interrupts_total",
		Help:      "Interrupts raised during execution",
	}, []string{"thread_id", "node"})

	return pm
}

// RecordStepLatency records one node execution's duration.
func (pm *PrometheusMetrics) RecordStepLatency(threadID, node string, d time.Duration) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.stepLatency.WithLabelValues(threadID, node).Observe(float64(d.Milliseconds()))
}

// IncrementRetries records one retry attempt.
func (pm *PrometheusMetrics) IncrementRetries(threadID, node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.retries.WithLabelValues(threadID, node).Inc()
}

// IncrementMergeConflicts records one InvalidUpdate occurrence.
func (pm *PrometheusMetrics) IncrementMergeConflicts(threadID, field string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.mergeConflicts.WithLabelValues(threadID, field).Inc()
}

// IncrementInterrupts records one Interrupt raised.
func (pm *PrometheusMetrics) IncrementInterrupts(threadID, node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.interrupts.WithLabelValues(threadID, node).Inc()
}

// SetInflightNodes reports the current in-step concurrency.
func (pm *PrometheusMetrics) SetInflightNodes(n int) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.inflightNodes.Set(float64(n))
}

// SetFrontierDepth reports the current frontier queue depth.
func (pm *PrometheusMetrics) SetFrontierDepth(n int) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.frontierDepth.Set(float64(n))
}

// Disable stops metric recording (useful in tests).
func (pm *PrometheusMetrics) Disable() { pm.enabled = false }

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() { pm.enabled = true }
