package report

import "sync/atomic"

// Metrics are plain counters projected from session Results.
// Every counter must be explainable by looking at a single session record.
type Metrics struct {
	SessionsStarted   atomic.Uint64
	SessionsCompleted atomic.Uint64
	SessionsFailed    atomic.Uint64
	SessionsCanceled  atomic.Uint64

	ExitZero    atomic.Uint64
	ExitNonZero atomic.Uint64

	BytesRelayed atomic.Uint64
}

var globalMetrics = &Metrics{}

// Global returns global metrics instance
func Global() *Metrics {
	return globalMetrics
}

// IncrStarted increments sessions started counter
func (m *Metrics) IncrStarted() {
	m.SessionsStarted.Add(1)
}

// RecordResult updates all counters from a single immutable Result
func (m *Metrics) RecordResult(r *Result) {
	switch {
	case r.Succeeded():
		m.SessionsCompleted.Add(1)
	case r.ExitReason == "canceled":
		m.SessionsCanceled.Add(1)
	default:
		m.SessionsFailed.Add(1)
	}

	if r.ExitCode == 0 {
		m.ExitZero.Add(1)
	} else {
		m.ExitNonZero.Add(1)
	}

	if r.BytesRelayed > 0 {
		m.BytesRelayed.Add(uint64(r.BytesRelayed))
	}
}

// InFlight returns sessions started but not yet recorded
func (m *Metrics) InFlight() uint64 {
	started := m.SessionsStarted.Load()
	done := m.SessionsCompleted.Load() + m.SessionsFailed.Load() + m.SessionsCanceled.Load()
	if done > started {
		return 0
	}
	return started - done
}

// Snapshot returns current counter values
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"sessions_started":   m.SessionsStarted.Load(),
		"sessions_completed": m.SessionsCompleted.Load(),
		"sessions_failed":    m.SessionsFailed.Load(),
		"sessions_canceled":  m.SessionsCanceled.Load(),
		"sessions_in_flight": m.InFlight(),
		"exit_zero":          m.ExitZero.Load(),
		"exit_non_zero":      m.ExitNonZero.Load(),
		"bytes_relayed":      m.BytesRelayed.Load(),
	}
}
