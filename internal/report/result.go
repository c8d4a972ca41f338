package report

import (
	"time"

	"github.com/psantana5/ytconvert/pkg/logging"
)

// Result is the immutable outcome of one streaming session. Built once
// when the session reaches a terminal state.
type Result struct {
	// Identity
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
	Binary    string `json:"binary"`

	// Timing
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	TimeToFirstByte time.Duration `json:"time_to_first_byte"`

	// Outcome
	State        string   `json:"state"`
	ExitCode     int      `json:"exit_code"`
	ExitReason   string   `json:"exit_reason"`
	BytesRelayed int64    `json:"bytes_relayed"`
	StderrTail   []string `json:"stderr_tail,omitempty"`
}

// NewResult creates an immutable result
func NewResult(sessionID string, pid int, binary string, startTime, endTime time.Time) *Result {
	return &Result{
		SessionID: sessionID,
		PID:       pid,
		Binary:    binary,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}
}

// Succeeded reports whether the session completed cleanly
func (r *Result) Succeeded() bool {
	return r.State == "completed"
}

// LogSummary emits the one-line session summary
func (r *Result) LogSummary(logger *logging.Logger) {
	fields := logging.Fields{
		"session_id": r.SessionID,
		"pid":        r.PID,
		"state":      r.State,
		"exit_code":  r.ExitCode,
		"reason":     r.ExitReason,
		"bytes":      r.BytesRelayed,
		"runtime_ms": r.Duration.Milliseconds(),
		"ttfb_ms":    r.TimeToFirstByte.Milliseconds(),
	}
	if r.Succeeded() {
		logger.Info("session finished", fields)
		return
	}
	if n := len(r.StderrTail); n > 0 {
		fields["stderr"] = r.StderrTail[n-1]
	}
	logger.Warn("session finished", fields)

	// a killed session's stderr is just interrupted progress
	if r.ExitReason == "canceled" {
		return
	}
	for i, line := range r.StderrTail {
		logger.Warn("stderr tail", logging.Fields{"session_id": r.SessionID, "n": i + 1, "line": line})
	}
}
