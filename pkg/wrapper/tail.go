package wrapper

import (
	"bytes"
	"sync"
)

// DefaultTailLines is how many stderr lines a session keeps
const DefaultTailLines = 20

// TailBuffer keeps the last N lines written to it
type TailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewTailBuffer creates a ring of max lines
func NewTailBuffer(max int) *TailBuffer {
	if max <= 0 {
		max = DefaultTailLines
	}
	return &TailBuffer{max: max}
}

// Add appends a line, evicting the oldest when full
func (t *TailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

// Lines returns a copy, oldest first
func (t *TailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// ScanLinesOrCR is a bufio.SplitFunc that splits on '\n' or '\r'.
// yt-dlp redraws its progress line with bare carriage returns.
func ScanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
