package diagnostics

import (
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	checksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "sink", "health_checks_total"),
		"Health probes run against the sink connection.", nil, nil)
	attemptsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "sink", "reconnect_attempts_total"),
		"Reconnect attempts started.", nil, nil)
	failuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "sink", "reconnect_failures_total"),
		"Reconnect attempts that failed.", nil, nil)
	statusDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "sink", "status"),
		"Last observed sink status (0=connected, 1=connecting, 2=disconnected).", nil, nil)
)

// SupervisorSource is the part of sink.Supervisor the collector reads.
type SupervisorSource interface {
	Stats() sink.SupervisorStats
	Snapshot() sink.State
}

// SupervisorCollector exports the counters of a sink supervisor.
type SupervisorCollector struct {
	source SupervisorSource
}

func NewSupervisorCollector(source SupervisorSource) *SupervisorCollector {
	return &SupervisorCollector{source: source}
}

func (c *SupervisorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- checksDesc
	ch <- attemptsDesc
	ch <- failuresDesc
	ch <- statusDesc
}

func (c *SupervisorCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(checksDesc, prometheus.CounterValue, float64(stats.Checks))
	ch <- prometheus.MustNewConstMetric(attemptsDesc, prometheus.CounterValue, float64(stats.ReconnectAttempts))
	ch <- prometheus.MustNewConstMetric(failuresDesc, prometheus.CounterValue, float64(stats.ReconnectFailures))
	ch <- prometheus.MustNewConstMetric(statusDesc, prometheus.GaugeValue, float64(c.source.Snapshot().Status))
}
