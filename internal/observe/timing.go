package observe

import (
	"sync"
	"time"
)

// Timing records start, first byte and end timestamps for a session
type Timing struct {
	mu          sync.Mutex
	StartedAt   time.Time
	FirstByteAt time.Time
	CompletedAt time.Time
}

// NewTiming creates timing with current start time
func NewTiming() *Timing {
	return &Timing{
		StartedAt: time.Now(),
	}
}

// MarkFirstByte records the first byte once
func (t *Timing) MarkFirstByte() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FirstByteAt.IsZero() {
		t.FirstByteAt = time.Now()
	}
}

// Complete records completion time once
func (t *Timing) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CompletedAt.IsZero() {
		t.CompletedAt = time.Now()
	}
}

// Duration returns execution duration
func (t *Timing) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// TimeToFirstByte returns zero when no byte was seen
func (t *Timing) TimeToFirstByte() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FirstByteAt.IsZero() {
		return 0
	}
	return t.FirstByteAt.Sub(t.StartedAt)
}
