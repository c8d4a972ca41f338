package wrapper

import (
	"bufio"
	"errors"
	"strings"
	"syscall"
	"testing"
)

type codeErr int

func (c codeErr) Error() string { return "exit" }
func (c codeErr) ExitCode() int { return int(c) }

func TestDetermineExitReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		reason ExitReason
	}{
		{"nil", nil, 0, ExitReasonSuccess},
		{"exit coder", codeErr(2), 2, ExitReasonError},
		{"wrapped exit coder", errors.Join(errors.New("ctx"), codeErr(5)), 5, ExitReasonError},
		{"opaque", errors.New("weird"), -1, ExitReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, reason, _ := DetermineExitReason(tt.err)
			if code != tt.code || reason != tt.reason {
				t.Errorf("Expected %d/%s, got %d/%s", tt.code, tt.reason, code, reason)
			}
		})
	}
}

func TestSignalName(t *testing.T) {
	if SignalName(syscall.SIGKILL) != "SIGKILL" {
		t.Errorf("Expected SIGKILL, got %s", SignalName(syscall.SIGKILL))
	}
	if SignalName(syscall.Signal(99)) != "SIG99" {
		t.Errorf("Expected SIG99, got %s", SignalName(syscall.Signal(99)))
	}
}

func TestScanLinesOrCR(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("a\rb\nc\r\nd"))
	scanner.Split(ScanLinesOrCR)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	want := []string{"a", "b", "c", "", "d"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := NewTailBuffer(3)
	for _, l := range []string{"1", "2", "3", "4", "5"} {
		tb.Add(l)
	}
	lines := tb.Lines()
	if strings.Join(lines, ",") != "3,4,5" {
		t.Errorf("Expected 3,4,5, got %v", lines)
	}
	lines[0] = "mutated"
	if tb.Lines()[0] != "3" {
		t.Error("Expected Lines to return a copy")
	}
}

func TestUpstreamErrorDetails(t *testing.T) {
	e := &UpstreamError{ExitCode: 1, Reason: ExitReasonError}
	if e.Details() != e.Error() {
		t.Errorf("Expected Error() as details without stderr, got %q", e.Details())
	}

	e.StderrTail = []string{"[youtube] abc: Downloading webpage", "something odd"}
	if e.Details() != "something odd" {
		t.Errorf("Expected last line, got %q", e.Details())
	}

	e.StderrTail = append(e.StderrTail, "ERROR: [youtube] abc: Private video")
	if e.Details() != "ERROR: [youtube] abc: Private video" {
		t.Errorf("Expected ERROR line, got %q", e.Details())
	}

	sig := &UpstreamError{ExitCode: -1, Reason: ExitReasonSignal, Signal: "SIGKILL"}
	if !strings.Contains(sig.Error(), "SIGKILL") {
		t.Errorf("Expected signal in message, got %q", sig.Error())
	}
}
