package wrapper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psantana5/ytconvert/internal/observe"
	"github.com/psantana5/ytconvert/internal/report"
	"github.com/psantana5/ytconvert/pkg/logging"
	"github.com/psantana5/ytconvert/pkg/models"
)

// stderrDrainTimeout bounds the wait for stderr EOF once stdout has ended
const stderrDrainTimeout = 2 * time.Second

// Options configures a session
type Options struct {
	ID        string
	Logger    *logging.Logger
	TailLines int

	// OnFinish is called once with the final result
	OnFinish func(*report.Result)
}

// Session owns one external process and relays its stdout.
// It is an io.ReadCloser; Read and Close must not be called concurrently.
type Session struct {
	ctx    context.Context
	id     string
	binary string
	proc   Process
	logger *logging.Logger
	timing *observe.Timing
	tail   *TailBuffer

	onFinish func(*report.Result)

	mu      sync.Mutex
	state   models.SessionState
	events  []LifecycleEvent
	readErr error

	bytes      atomic.Int64
	killed     atomic.Bool
	stderrDone chan struct{}

	finishOnce sync.Once
	finalErr   error
	result     *report.Result
}

// Start spawns exactly one process and returns a session positioned
// before the first stdout byte
func Start(ctx context.Context, spawner Spawner, binary string, args []string, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.ID != "" {
		logger = logger.WithField("session_id", opts.ID)
	}

	timing := observe.NewTiming()
	proc, err := spawner.Spawn(ctx, binary, args)
	if err != nil {
		var spawnErr *SpawnError
		if !errors.As(err, &spawnErr) {
			err = &SpawnError{Binary: binary, Err: err}
		}
		logger.Error("spawn failed", logging.Fields{"binary": binary, "error": err})
		return nil, err
	}

	report.Global().IncrStarted()

	s := &Session{
		ctx:        ctx,
		id:         opts.ID,
		binary:     binary,
		proc:       proc,
		logger:     logger.WithField("pid", proc.PID()),
		timing:     timing,
		tail:       NewTailBuffer(opts.TailLines),
		onFinish:   opts.OnFinish,
		state:      models.SessionSpawned,
		stderrDone: make(chan struct{}),
	}
	s.emitEvent(models.SessionSpawned, 0, "", fmt.Sprintf("PID %d started", proc.PID()))
	s.logger.Debug("process spawned", logging.Fields{"binary": binary, "args": strings.Join(args, " ")})

	go s.drainStderr()

	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// PID returns the process id
func (s *Session) PID() int {
	return s.proc.PID()
}

// State returns the current state
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BytesRelayed returns how many stdout bytes have been handed to the reader
func (s *Session) BytesRelayed() int64 {
	return s.bytes.Load()
}

// StderrTail returns the last captured stderr lines
func (s *Session) StderrTail() []string {
	return s.tail.Lines()
}

// Events returns a copy of the lifecycle events
func (s *Session) Events() []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Result returns the final result, or nil while the session is running
func (s *Session) Result() *report.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Read pulls the next chunk straight from the process's stdout.
// At end of stream it returns io.EOF on exit 0, otherwise *UpstreamError.
func (s *Session) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.readErr != nil {
		err := s.readErr
		s.mu.Unlock()
		return 0, err
	}
	s.mu.Unlock()

	n, err := s.proc.Stdout().Read(p)
	if n > 0 {
		s.bytes.Add(int64(n))
		s.markStreaming()
	}
	if err == nil {
		return n, nil
	}

	var final error
	if errors.Is(err, io.EOF) {
		final = s.finish("", nil)
		if final == nil {
			final = io.EOF
		}
	} else {
		// stdout broke under a live process: stop it, it cannot be relayed
		if kerr := s.proc.Kill(); kerr != nil {
			s.logger.Warn("kill after stream error failed", logging.Fields{"error": kerr})
		}
		final = s.finish(ExitReasonStreamError, err)
	}

	s.mu.Lock()
	s.readErr = final
	s.mu.Unlock()
	return n, final
}

// Close kills the process group if it is still running and reaps it.
// Safe to call more than once.
func (s *Session) Close() error {
	if !s.State().IsTerminal() {
		s.killed.Store(true)
		if err := s.proc.Kill(); err != nil {
			s.logger.Warn("kill failed", logging.Fields{"error": err})
		}
	}
	s.finish("", nil)

	s.mu.Lock()
	if s.readErr == nil {
		s.readErr = io.ErrClosedPipe
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) markStreaming() {
	s.mu.Lock()
	if s.state != models.SessionSpawned {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.timing.MarkFirstByte()
	s.transition(models.SessionStreaming, 0, "", "first byte relayed")
}

// finish reaps the process once and records the outcome
func (s *Session) finish(override ExitReason, cause error) error {
	s.finishOnce.Do(func() {
		select {
		case <-s.stderrDone:
		case <-time.After(stderrDrainTimeout):
			s.logger.Warn("stderr still open after stdout closed")
		}

		waitErr := s.proc.Wait()
		s.timing.Complete()

		code, reason, signal := DetermineExitReason(waitErr)
		switch {
		case s.killed.Load():
			reason = ExitReasonCanceled
		case override != "":
			reason = override
		case !reason.IsSuccess() && s.ctx.Err() != nil:
			reason = ExitReasonCanceled
		}

		if cause == nil {
			cause = waitErr
		}

		state := models.SessionCompleted
		if !reason.IsSuccess() {
			state = models.SessionFailed
			s.finalErr = &UpstreamError{
				ExitCode:   code,
				Reason:     reason,
				Signal:     signal,
				StderrTail: s.tail.Lines(),
				Err:        cause,
			}
		}
		s.transition(state, code, reason, fmt.Sprintf("exit=%d reason=%s", code, reason))

		result := report.NewResult(s.id, s.proc.PID(), s.binary, s.timing.StartedAt, s.timing.CompletedAt)
		result.TimeToFirstByte = s.timing.TimeToFirstByte()
		result.State = string(state)
		result.ExitCode = code
		result.ExitReason = string(reason)
		result.BytesRelayed = s.bytes.Load()
		result.StderrTail = s.tail.Lines()

		s.mu.Lock()
		s.result = result
		s.mu.Unlock()

		report.Global().RecordResult(result)
		result.LogSummary(s.logger)
		if s.onFinish != nil {
			s.onFinish(result)
		}
	})
	return s.finalErr
}

func (s *Session) transition(to models.SessionState, code int, reason ExitReason, msg string) {
	s.mu.Lock()
	from := s.state
	if err := models.ValidateSessionTransition(from, to); err != nil {
		s.mu.Unlock()
		s.logger.Warn("ignoring session transition", logging.Fields{"error": err})
		return
	}
	s.state = to
	s.mu.Unlock()

	s.emitEvent(to, code, reason, msg)
}

func (s *Session) emitEvent(state models.SessionState, code int, reason ExitReason, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, LifecycleEvent{
		PID:        s.proc.PID(),
		State:      state,
		Timestamp:  time.Now(),
		ExitCode:   code,
		ExitReason: reason,
		Message:    msg,
	})
}

// drainStderr keeps the stderr pipe empty so the process never blocks on it
func (s *Session) drainStderr() {
	defer close(s.stderrDone)

	stderr := s.proc.Stderr()
	if stderr == nil {
		return
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(ScanLinesOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.tail.Add(line)
		switch {
		case strings.HasPrefix(line, "ERROR:"):
			s.logger.Warn("stderr", logging.Fields{"line": line})
		case strings.HasPrefix(line, "WARNING:"):
			s.logger.Info("stderr", logging.Fields{"line": line})
		case s.logger.Enabled(logging.DEBUG):
			s.logger.Debug("stderr", logging.Fields{"line": line})
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("stderr scan stopped", logging.Fields{"error": err})
		io.Copy(io.Discard, stderr)
	}
}
