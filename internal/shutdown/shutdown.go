// Package shutdown runs cleanup functions when ecolaunch is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/ecolaunch/internal/logging"
)

// Func is a cleanup step. It must return once ctx is done.
type Func func(context.Context) error

// Manager handles graceful shutdown
type Manager struct {
	funcs   []namedFunc
	mu      sync.Mutex
	timeout time.Duration
	logger  *logging.Logger
	once    sync.Once
	done    chan struct{}
}

type namedFunc struct {
	name string
	fn   Func
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger.WithComponent("shutdown"),
		done:    make(chan struct{}),
	}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO).
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Done returns a channel that is closed when shutdown is initiated
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. The
// first signal also closes Done.
func (m *Manager) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			m.logger.Info("Received signal, initiating graceful shutdown", map[string]interface{}{
				"signal": sig.String(),
			})
			m.once.Do(func() { close(m.done) })
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Shutdown executes every registered function under the manager's timeout.
// It returns the first error but always runs every function.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var firstErr error
	for i := len(m.funcs) - 1; i >= 0; i-- {
		f := m.funcs[i]
		if err := f.fn(ctx); err != nil {
			m.logger.Error("Shutdown step failed", map[string]interface{}{
				"step":  f.name,
				"error": err.Error(),
			})
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", f.name, err)
			}
			continue
		}
		m.logger.Debug("Shutdown step complete", map[string]interface{}{"step": f.name})
	}
	m.funcs = nil

	m.logger.Info("Graceful shutdown complete")
	return firstErr
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) Func {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }) Func {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}
