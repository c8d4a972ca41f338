package wrapper

import (
	"fmt"
	"strings"

	"github.com/psantana5/ytconvert/pkg/models"
)

// SpawnError means the process could not be started at all
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Kind returns the error taxonomy kind
func (e *SpawnError) Kind() models.ErrorKind {
	return models.KindSpawnFailure
}

// UpstreamError means the process started but did not complete cleanly
type UpstreamError struct {
	ExitCode   int
	Reason     ExitReason
	Signal     string
	StderrTail []string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Signal != "":
		return fmt.Sprintf("process killed by %s (%s)", e.Signal, e.Reason)
	case e.Reason == ExitReasonStreamError && e.Err != nil:
		return fmt.Sprintf("output stream failed: %v", e.Err)
	default:
		return fmt.Sprintf("process exited with code %d (%s)", e.ExitCode, e.Reason)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Kind returns the error taxonomy kind
func (e *UpstreamError) Kind() models.ErrorKind {
	return models.KindUpstreamFailure
}

// Details returns the most useful diagnostic text: the stderr lines
// starting with "ERROR:" if any, else the last stderr line, else Error().
func (e *UpstreamError) Details() string {
	var errLines []string
	for _, line := range e.StderrTail {
		if strings.HasPrefix(line, "ERROR:") {
			errLines = append(errLines, line)
		}
	}
	if len(errLines) > 0 {
		return strings.Join(errLines, "\n")
	}
	if n := len(e.StderrTail); n > 0 {
		return e.StderrTail[n-1]
	}
	return e.Error()
}
