package models

import "fmt"

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindProbeFailure    ErrorKind = "probe_failure"
	KindSpawnFailure    ErrorKind = "spawn_failure"
	KindUpstreamFailure ErrorKind = "upstream_failure"
)

// ValidationError rejects a request before any process is started
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// Kind returns KindInvalidRequest
func (e *ValidationError) Kind() ErrorKind {
	return KindInvalidRequest
}
