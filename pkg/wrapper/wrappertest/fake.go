// Package wrappertest provides a scripted Spawner for tests.
package wrappertest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/ytconvert/pkg/wrapper"
)

// Script describes how a fake process behaves
type Script struct {
	Stdout     [][]byte      // chunks written to stdout, in order
	Stderr     string        // full stderr text
	ExitCode   int           // exit status reported by Wait
	SpawnErr   error         // returned from Spawn instead of a process
	StreamErr  error         // stdout fails with this after the chunks
	Block      bool          // keep stdout open after the chunks until killed
	ChunkDelay time.Duration // pause before each chunk
}

// ExitError is returned by Wait for a non-zero exit
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the exit status
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Call records one Spawn invocation
type Call struct {
	Name string
	Args []string
}

type rule struct {
	arg    string
	script Script
}

// FakeSpawner spawns FakeProcesses and counts every attempt
type FakeSpawner struct {
	mu      sync.Mutex
	def     Script
	rules   []rule
	calls   []Call
	procs   []*FakeProcess
	nextPID int
}

// NewFakeSpawner uses def for any invocation no rule matches
func NewFakeSpawner(def Script) *FakeSpawner {
	return &FakeSpawner{def: def, nextPID: 1000}
}

// On uses script for invocations whose args contain arg
func (f *FakeSpawner) On(arg string, script Script) *FakeSpawner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{arg: arg, script: script})
	return f
}

// Spawn implements wrapper.Spawner
func (f *FakeSpawner) Spawn(ctx context.Context, name string, args []string) (wrapper.Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	script := f.def
	for _, r := range f.rules {
		if containsArg(args, r.arg) {
			script = r.script
			break
		}
	}
	f.nextPID++
	pid := f.nextPID
	f.mu.Unlock()

	if script.SpawnErr != nil {
		return nil, script.SpawnErr
	}

	p := newFakeProcess(ctx, pid, script)
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()
	return p, nil
}

// Spawns returns the number of Spawn calls, failed ones included
func (f *FakeSpawner) Spawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns a copy of every Spawn invocation
func (f *FakeSpawner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Processes returns the processes spawned so far
func (f *FakeSpawner) Processes() []*FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeProcess, len(f.procs))
	copy(out, f.procs)
	return out
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

// FakeProcess is a scripted wrapper.Process. stdout is an unbuffered pipe,
// so writes block until the reader consumes them.
type FakeProcess struct {
	pid    int
	script Script
	stdout *io.PipeReader
	pw     *io.PipeWriter
	stderr io.Reader

	killOnce sync.Once
	killCh   chan struct{}
	done     chan struct{}
}

func newFakeProcess(ctx context.Context, pid int, script Script) *FakeProcess {
	pr, pw := io.Pipe()
	p := &FakeProcess{
		pid:    pid,
		script: script,
		stdout: pr,
		pw:     pw,
		stderr: strings.NewReader(script.Stderr),
		killCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	go func() {
		select {
		case <-ctx.Done():
			p.Kill()
		case <-p.done:
		}
	}()
	return p
}

func (p *FakeProcess) run() {
	defer close(p.done)
	pw := p.pw

	for _, chunk := range p.script.Stdout {
		if p.script.ChunkDelay > 0 {
			select {
			case <-time.After(p.script.ChunkDelay):
			case <-p.killCh:
				pw.Close()
				return
			}
		}
		if _, err := pw.Write(chunk); err != nil {
			return
		}
	}

	if p.script.Block {
		<-p.killCh
	}
	if p.script.StreamErr != nil {
		pw.CloseWithError(p.script.StreamErr)
		return
	}
	pw.Close()
}

func (p *FakeProcess) Stdout() io.Reader { return p.stdout }
func (p *FakeProcess) Stderr() io.Reader { return p.stderr }
func (p *FakeProcess) PID() int          { return p.pid }

// Wait blocks until the script has finished or the process was killed
func (p *FakeProcess) Wait() error {
	select {
	case <-p.done:
	case <-p.killCh:
		<-p.done
	}
	if p.Killed() {
		return &ExitError{Code: -1}
	}
	if p.script.ExitCode != 0 {
		return &ExitError{Code: p.script.ExitCode}
	}
	return nil
}

// Kill stops the process; the reader sees EOF as with a real pipe
func (p *FakeProcess) Kill() error {
	p.killOnce.Do(func() {
		close(p.killCh)
		p.pw.Close()
	})
	return nil
}

// Killed reports whether Kill was called
func (p *FakeProcess) Killed() bool {
	select {
	case <-p.killCh:
		return true
	default:
		return false
	}
}

// Exited reports whether the process has finished
func (p *FakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
