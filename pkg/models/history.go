package models

import "time"

// ConversionRecord is one audit-log entry, written after a request's
// session has ended or the request was rejected before spawning
type ConversionRecord struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"`
	Format      OutputKind   `json:"format"`
	Quality     string       `json:"quality,omitempty"`
	Title       string       `json:"title"`
	FileName    string       `json:"file_name"`
	State       SessionState `json:"state"`
	ExitCode    int          `json:"exit_code"`
	ExitReason  string       `json:"exit_reason,omitempty"`
	Bytes       int64        `json:"bytes"`
	DurationMs  int64        `json:"duration_ms"`
	Error       string       `json:"error,omitempty"`
	ClientIP    string       `json:"client_ip,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt time.Time    `json:"completed_at"`
}
