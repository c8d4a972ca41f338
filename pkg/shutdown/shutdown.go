package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/ytconvert/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	shutdownFuncs []namedFunc
	mu            sync.Mutex
	timeout       time.Duration
	logger        *logging.Logger
	doneChan      chan struct{}
	once          sync.Once
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout:  timeout,
		logger:   logger.WithField("component", "shutdown"),
		doneChan: make(chan struct{}),
	}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// Trigger starts shutdown without a signal
func (m *Manager) Trigger() {
	m.once.Do(func() {
		close(m.doneChan)
	})
}

// Done returns a channel that is closed when shutdown is initiated
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Shutdown executes all registered shutdown functions
func (m *Manager) Shutdown() {
	m.Trigger()

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		f := m.shutdownFuncs[i]
		if err := f.fn(ctx); err != nil {
			m.logger.Error("shutdown step failed", logging.Fields{"step": f.name, "error": err})
			continue
		}
		m.logger.Debug("shutdown step done", logging.Fields{"step": f.name})
	}

	m.logger.Info("graceful shutdown complete")
}

// WaitWithContext blocks until a shutdown signal, Trigger, or ctx
// cancellation, then runs Shutdown
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("received signal, shutting down", logging.Fields{"signal": sig.String()})
	case <-m.doneChan:
		m.logger.Info("shutdown triggered")
	case <-ctx.Done():
		m.Shutdown()
		return ctx.Err()
	}
	m.Shutdown()
	return nil
}

// StopHTTPServer creates a shutdown function for http.Server. When the budget
// runs out before in-flight requests finish, the remaining connections are
// closed so their handlers see a canceled request context.
func StopHTTPServer(server interface {
	Shutdown(context.Context) error
	Close() error
}, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			if cerr := server.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}

// WaitForJobs creates a shutdown function that polls until checkFunc
// reports no work left or the shutdown budget runs out
func WaitForJobs(checkFunc func() bool, pollInterval time.Duration, resourceName string) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			if checkFunc() {
				return nil
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("timeout waiting for %s: %w", resourceName, ctx.Err())
			case <-ticker.C:
			}
		}
	}
}

// CancelJobs creates a shutdown function that waits for checkFunc like
// WaitForJobs. If the budget runs out it calls cancel and waits up to grace
// for the canceled work to drain.
func CancelJobs(checkFunc func() bool, cancel context.CancelFunc, grace, pollInterval time.Duration, resourceName string) func(context.Context) error {
	wait := WaitForJobs(checkFunc, pollInterval, resourceName)
	return func(ctx context.Context) error {
		err := wait(ctx)
		if err == nil {
			return nil
		}
		cancel()

		graceCtx, stop := context.WithTimeout(context.Background(), grace)
		defer stop()
		if gerr := wait(graceCtx); gerr != nil {
			return errors.Join(err, gerr)
		}
		return fmt.Errorf("canceled %s: %w", resourceName, err)
	}
}
