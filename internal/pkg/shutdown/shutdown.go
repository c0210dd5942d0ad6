// Package shutdown runs registered cleanup hooks when a service stops.
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

	"framecast/internal/pkg/logger"
)

// DefaultTimeout bounds the whole cleanup sequence.
const DefaultTimeout = 30 * time.Second

// Hook is a named cleanup step.
type Hook struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager collects hooks and runs them once, newest first.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	once sync.Once
	err  error
	done chan struct{}
}

// NewManager creates a manager; a zero timeout means DefaultTimeout.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup hook.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Cleanup: cleanup})
}

// RegisterFunc adds a hook that cannot fail.
func (m *Manager) RegisterFunc(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// SignalContext returns a context canceled on SIGINT/SIGTERM or when parent ends.
// Render workers observe it to abandon in-flight captures.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Wait blocks until ctx is done or a termination signal arrives, then shuts down.
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := SignalContext(ctx)
	defer stop()

	<-sigCtx.Done()
	m.log.Info("shutdown requested", "cause", context.Cause(sigCtx).Error())
	return m.Shutdown()
}

// Shutdown runs every hook in reverse registration order under one deadline.
// Later calls return the result of the first.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		hooks := append([]Hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("running shutdown hooks", "hooks", len(hooks), "timeout", m.timeout.String())

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("%s: skipped: %w", h.Name, ctx.Err()))
				continue
			}

			start := time.Now()
			if err := h.Cleanup(ctx); err != nil {
				m.log.Error("shutdown hook failed", "name", h.Name, "error", err.Error())
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				continue
			}
			m.log.Debug("shutdown hook completed", "name", h.Name, "duration_ms", time.Since(start).Milliseconds())
		}

		m.err = errors.Join(errs...)
	})
	return m.err
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
