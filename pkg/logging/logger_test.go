package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, false)
	logger.SetOutput(&buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected INFO line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "WARN: shown") {
		t.Errorf("Expected WARN line, got %q", out)
	}
}

func TestJSONEntryCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DEBUG, true)
	logger.SetOutput(&buf)

	child := logger.WithField("session_id", "abc")
	child.Error("engine exited", Fields{"exit_code": 2, "error": errors.New("boom")})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log entry: %v", err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("Expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["session_id"] != "abc" {
		t.Errorf("Expected session_id field, got %v", entry.Fields)
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("Expected error rendered as string, got %v", entry.Fields["error"])
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, false)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Info("parent line")

	if strings.Contains(buf.String(), "child=") {
		t.Errorf("Expected parent logger without child field, got %q", buf.String())
	}
}

func TestChildSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, false)
	child := parent.WithField("k", "v")
	parent.SetOutput(&buf)

	child.Info("from child")
	if !strings.Contains(buf.String(), "from child k=v") {
		t.Errorf("Expected child to write through parent's output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"WARNING", WARN},
		{" error ", ERROR},
		{"unknown", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	if logger.Enabled(FATAL) {
		t.Error("Expected Nop logger to have every level disabled")
	}
	logger.Error("nothing")
}
