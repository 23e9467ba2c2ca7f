// Package shutdown coordinates teardown of the viewer's long-running
// mode: tail and watch workers, the diagnostics server and the session
// snapshot all stop through one signal-driven manager.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
)

// DefaultTimeout bounds how long registered stop functions may run.
const DefaultTimeout = 30 * time.Second

// Func performs one component's cleanup.
type Func func(context.Context) error

type named struct {
	name string
	fn   Func
}

// Manager runs registered stop functions once, on signal or on an
// explicit Shutdown call.
type Manager struct {
	log     *logging.Logger
	timeout time.Duration

	mu    sync.Mutex
	funcs []named

	trigger chan struct{}
	once    sync.Once
	done    chan struct{}
}

// New builds a manager. Zero timeout means DefaultTimeout.
func New(timeout time.Duration, log *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds a stop function under a name used in logs.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, named{name: name, fn: fn})
}

// WaitForSignal blocks until one of the given signals arrives or
// Shutdown is called elsewhere. No signals means SIGINT and SIGTERM.
func (m *Manager) WaitForSignal(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		m.Shutdown()
	case <-m.trigger:
	}
}

// Shutdown runs every registered stop function once. Subsequent calls
// are no-ops.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		close(m.trigger)
		m.run()
	})
}

func (m *Manager) run() {
	m.mu.Lock()
	funcs := m.funcs
	m.mu.Unlock()

	m.log.Info().Int("components", len(funcs)).Dur("timeout", m.timeout).Msg("stopping")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	var failures sync.Map

	for _, nf := range funcs {
		wg.Add(1)
		go func(nf named) {
			defer wg.Done()
			if err := nf.fn(ctx); err != nil {
				failures.Store(nf.name, err)
				m.log.Error().Err(err).Str("component", nf.name).Msg("stop failed")
			}
		}(nf)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		failed := 0
		failures.Range(func(_, _ any) bool {
			failed++
			return true
		})
		if failed > 0 {
			m.log.Warn().Int("failed", failed).Msg("shutdown finished with errors")
		} else {
			m.log.Info().Msg("shutdown finished")
		}
	case <-ctx.Done():
		m.log.Warn().Dur("timeout", m.timeout).Msg("shutdown timed out")
	}

	close(m.done)
}

// Triggered is closed as soon as shutdown begins.
func (m *Manager) Triggered() <-chan struct{} {
	return m.trigger
}

// Done is closed once every stop function has returned or the timeout
// expired.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until shutdown completes or d elapses.
func (m *Manager) Wait(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-m.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("shutdown did not complete within %v", d)
	}
}

// HandlePanic recovers from a panic, runs shutdown and re-panics.
func (m *Manager) HandlePanic() {
	if r := recover(); r != nil {
		m.log.Error().Interface("panic", r).Msg("panic recovered, shutting down")
		m.Shutdown()
		panic(r)
	}
}
