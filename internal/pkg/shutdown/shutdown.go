// Package shutdown turns termination signals into context cancellation and
// runs registered cleanup handlers once the command is done.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"certsend/internal/pkg/logger"
)

// Manager handles cancellation and cleanup for a command run.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	signals  []os.Signal
	handlers []Handler
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
}

// Handler is a function that performs cleanup during shutdown.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		log:      log,
		timeout:  timeout,
		signals:  []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		handlers: make([]Handler, 0),
		done:     make(chan struct{}),
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a simple cleanup handler without context.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// Context returns a child of parent that is canceled when a termination
// signal arrives. The returned cancel func releases the signal watcher.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, m.signals...)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			m.log.Warn("signal received, stopping", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Shutdown runs all cleanup handlers in reverse registration order. Only the
// first call does any work.
func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Debug("running cleanup", "handlers", len(handlers), "timeout", m.timeout.String())

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := len(handlers) - 1; i >= 0; i-- {
			h := handlers[i]
			start := time.Now()
			if err := h.Cleanup(ctx); err != nil {
				m.log.Error("cleanup handler failed",
					"name", h.Name,
					"error", err.Error(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
				continue
			}
			m.log.Debug("cleanup handler completed",
				"name", h.Name,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		m.log.Warn("cleanup timeout exceeded")
	}

	close(m.done)
}

// Done returns a channel that is closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
