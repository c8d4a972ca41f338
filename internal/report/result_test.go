package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/ytconvert/pkg/logging"
)

func TestLogSummaryFailureCarriesWholeTail(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	now := time.Now()
	r := NewResult("s1", 42, "yt-dlp", now, now.Add(time.Second))
	r.State = "failed"
	r.ExitCode = 1
	r.ExitReason = "error"
	r.StderrTail = []string{
		"[youtube] abc: Downloading webpage",
		"WARNING: unable to extract uploader",
		"ERROR: Video unavailable",
	}
	r.LogSummary(logger)

	out := buf.String()
	for _, line := range r.StderrTail {
		if !strings.Contains(out, line) {
			t.Errorf("Expected stderr line %q at INFO level, got %q", line, out)
		}
	}
	if !strings.Contains(out, "WARN: session finished") {
		t.Errorf("Expected WARN summary, got %q", out)
	}
}

func TestLogSummaryCanceledSkipsTail(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	now := time.Now()
	r := NewResult("s2", 43, "yt-dlp", now, now)
	r.State = "failed"
	r.ExitReason = "canceled"
	r.StderrTail = []string{"[download]  12.0%", "[download]  13.0%"}
	r.LogSummary(logger)

	if strings.Contains(buf.String(), "stderr tail") {
		t.Errorf("Expected no tail for a canceled session, got %q", buf.String())
	}
}

func TestLogSummarySuccessIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	now := time.Now()
	r := NewResult("s3", 44, "yt-dlp", now, now)
	r.State = "completed"
	r.ExitReason = "success"
	r.StderrTail = []string{"[download] 100%"}
	r.LogSummary(logger)

	if !strings.Contains(buf.String(), "INFO: session finished") || strings.Contains(buf.String(), "stderr tail") {
		t.Errorf("Expected a single INFO summary, got %q", buf.String())
	}
}
