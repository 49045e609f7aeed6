package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autodq",
		Subsystem: "warehouse",
		Name:      "query_duration_seconds",
		Help:      "Warehouse query latency by backend and statement kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"backend", "kind"})

	Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autodq",
		Name:      "refreshes_total",
		Help:      "Data cache refreshes by outcome.",
	}, []string{"outcome"})

	AlertsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autodq",
		Name:      "alerts_dispatched_total",
		Help:      "Alerts sent to notification sinks by severity.",
	}, []string{"severity"})

	RuleExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autodq",
		Name:      "rule_executions_total",
		Help:      "Smart rule executions by final state.",
	}, []string{"result"})
)

// NewRegistry returns a registry holding the process and Go collectors plus
// every AutoDQ metric.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		QueryDuration,
		Refreshes,
		AlertsDispatched,
		RuleExecutions,
	)
	return reg
}
