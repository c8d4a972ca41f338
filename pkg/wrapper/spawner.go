package wrapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Process is one running external program
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
	PID() int
}

// Spawner starts external programs
type Spawner interface {
	Spawn(ctx context.Context, name string, args []string) (Process, error)
}

// ExecSpawner spawns real processes in their own process group
type ExecSpawner struct {
	// WaitDelay bounds how long Wait blocks on pipes after the process exits
	WaitDelay time.Duration
}

// NewExecSpawner creates a spawner with default settings
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{WaitDelay: 5 * time.Second}
}

// Spawn starts name with args. Cancelling ctx kills the whole process group.
func (s *ExecSpawner) Spawn(ctx context.Context, name string, args []string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	// New process group so yt-dlp's ffmpeg children die with it
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
	cmd.WaitDelay = s.WaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Binary: name, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Binary: name, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: name, Err: err}
	}

	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }
func (p *execProcess) PID() int          { return p.cmd.Process.Pid }

func (p *execProcess) Kill() error {
	return killGroup(p.cmd)
}

// killGroup sends SIGKILL to the process group, falling back to the leader
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
