package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/ytconvert/internal/report"
)

// sessionCollector exposes the process-wide session counters kept by
// internal/report, so they need no second bookkeeping path
type sessionCollector struct {
	source   *report.Metrics
	sessions *prometheus.Desc
	inFlight *prometheus.Desc
	exits    *prometheus.Desc
}

func newSessionCollector(source *report.Metrics) *sessionCollector {
	return &sessionCollector{
		source: source,
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Process sessions by terminal state",
			[]string{"state"}, nil,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_in_flight"),
			"Process sessions spawned and not yet reaped",
			nil, nil,
		),
		exits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "process_exits_total"),
			"Reaped processes by exit status class",
			[]string{"class"}, nil,
		),
	}
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.inFlight
	ch <- c.exits
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.CounterValue, float64(snap["sessions_completed"]), "completed")
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.CounterValue, float64(snap["sessions_failed"]), "failed")
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.CounterValue, float64(snap["sessions_canceled"]), "canceled")
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(snap["sessions_in_flight"]))
	ch <- prometheus.MustNewConstMetric(c.exits, prometheus.CounterValue, float64(snap["exit_zero"]), "zero")
	ch <- prometheus.MustNewConstMetric(c.exits, prometheus.CounterValue, float64(snap["exit_non_zero"]), "non_zero")
}
