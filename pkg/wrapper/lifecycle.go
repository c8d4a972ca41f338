package wrapper

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/psantana5/ytconvert/pkg/models"
)

// ExitReason describes why a process terminated
type ExitReason string

const (
	ExitReasonSuccess     ExitReason = "success"      // Exit code 0
	ExitReasonError       ExitReason = "error"        // Exit code != 0
	ExitReasonSignal      ExitReason = "signal"       // Killed by signal
	ExitReasonCanceled    ExitReason = "canceled"     // Client went away, we killed it
	ExitReasonStreamError ExitReason = "stream_error" // stdout read failed
	ExitReasonUnknown     ExitReason = "unknown"
)

// LifecycleEvent represents a session state change
type LifecycleEvent struct {
	PID        int                 `json:"pid"`
	State      models.SessionState `json:"state"`
	Timestamp  time.Time           `json:"timestamp"`
	ExitCode   int                 `json:"exit_code,omitempty"`
	ExitReason ExitReason          `json:"exit_reason,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// exitCoder is satisfied by *exec.ExitError and by test fakes
type exitCoder interface {
	ExitCode() int
}

// DetermineExitReason analyzes a Wait error. The returned signal name is
// empty unless the process was killed by a signal.
func DetermineExitReason(err error) (int, ExitReason, string) {
	if err == nil {
		return 0, ExitReasonSuccess, ""
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return -1, ExitReasonSignal, SignalName(status.Signal())
		}
		return exitErr.ExitCode(), ExitReasonError, ""
	}

	var coder exitCoder
	if errors.As(err, &coder) {
		code := coder.ExitCode()
		if code == 0 {
			return 0, ExitReasonSuccess, ""
		}
		return code, ExitReasonError, ""
	}

	return -1, ExitReasonUnknown, ""
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGABRT:
		return "SIGABRT"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}

// IsSuccess returns true if the exit represents success
func (r ExitReason) IsSuccess() bool {
	return r == ExitReasonSuccess
}
