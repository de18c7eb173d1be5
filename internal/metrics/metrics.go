// Package metrics owns the prometheus collectors of the ranch service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors so they can be registered on a private
// registry (tests) or the one served on /metrics.
type Metrics struct {
	Registry         *prometheus.Registry
	remoteOps        *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	rosterRejections *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		remoteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranch",
			Name:      "remote_operations_total",
			Help:      "Table store operations by table, operation and outcome.",
		}, []string{"table", "op", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ranch",
			Name:      "remote_operation_seconds",
			Help:      "Table store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "op"}),
		rosterRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranch",
			Name:      "roster_rejections_total",
			Help:      "Roster batch saves rejected by validation.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.remoteOps,
		m.remoteLatency,
		m.rosterRejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRemote records one table store call.
func (m *Metrics) ObserveRemote(table, op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.remoteOps.WithLabelValues(table, op, outcome).Inc()
	m.remoteLatency.WithLabelValues(table, op).Observe(took.Seconds())
}

// RosterRejected counts a validation rejection ("duplicate_name", "phone").
func (m *Metrics) RosterRejected(reason string) {
	if m == nil {
		return
	}
	m.rosterRejections.WithLabelValues(reason).Inc()
}
