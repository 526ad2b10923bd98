// Package session tracks the live workflow controllers of a process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
	"github.com/dunamismax/styleflow/internal/transform"
	"github.com/dunamismax/styleflow/internal/workflow"
)

type ManagerOptions struct {
	Logger           *log.Logger
	Styles           workflow.StyleFinder
	Observer         workflow.Observer
	Metrics          *Metrics
	TransformTimeout time.Duration
	// IdleTTL evicts sessions untouched for this long. Zero disables eviction.
	IdleTTL time.Duration
	// OnRemove runs after a session is deleted or evicted.
	OnRemove func(sessionID string)
}

type entry struct {
	controller *workflow.Controller
	lastSeen   time.Time
}

// Manager owns one workflow.Controller per session.
type Manager struct {
	provider transform.Provider
	opts     ManagerOptions
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

func NewManager(provider transform.Provider, opts ManagerOptions) (*Manager, error) {
	if provider == nil {
		return nil, errors.New("transform provider is required")
	}
	return &Manager{
		provider: provider,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}, nil
}

func (m *Manager) Create() (*workflow.Controller, error) {
	sessionID := id.New()
	controller, err := workflow.New(m.provider, workflow.Options{
		SessionID:        sessionID,
		Logger:           m.opts.Logger,
		Styles:           m.opts.Styles,
		Observer:         m.opts.Observer,
		TransformTimeout: m.opts.TransformTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = controller.Close()
		return nil, domain.ErrClosed
	}
	m.sessions[sessionID] = &entry{controller: controller, lastSeen: m.now()}
	count := len(m.sessions)
	m.mu.Unlock()

	m.opts.Metrics.setActive(count)
	m.logf("session created session_id=%s active=%d", sessionID, count)
	return controller, nil
}

// Get returns the controller for sessionID and marks the session as used.
func (m *Manager) Get(sessionID string) (*workflow.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	e.lastSeen = m.now()
	return e.controller, nil
}

func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	m.remove(sessionID, e.controller, count, "deleted")
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than IdleTTL. Sessions with a
// transform in flight are kept; the controller itself decides that, so a
// style selected concurrently with the sweep is never cut off.
func (m *Manager) Sweep() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.opts.IdleTTL)
	var evicted []string

	m.mu.Lock()
	for sessionID, e := range m.sessions {
		if e.lastSeen.After(cutoff) {
			continue
		}
		if !e.controller.Retire() {
			continue
		}
		delete(m.sessions, sessionID)
		evicted = append(evicted, sessionID)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, sessionID := range evicted {
		m.ended(sessionID, count, "evicted")
	}
	return len(evicted)
}

// Touch marks sessionID as used without returning its controller.
func (m *Manager) Touch(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if ok {
		e.lastSeen = m.now()
	}
	return ok
}

// Run sweeps periodically until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	if m.opts.IdleTTL <= 0 {
		<-ctx.Done()
		return
	}

	interval := max(m.opts.IdleTTL/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logf("evicted idle sessions count=%d", n)
			}
		}
	}
}

// Close shuts every controller down. Later Create calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var errs []error
	for _, e := range sessions {
		if err := e.controller.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.opts.Metrics.setActive(0)
	return errors.Join(errs...)
}

func (m *Manager) remove(sessionID string, controller *workflow.Controller, remaining int, reason string) {
	if err := controller.Close(); err != nil {
		m.logf("session close failed session_id=%s err=%v", sessionID, err)
	}
	m.ended(sessionID, remaining, reason)
}

func (m *Manager) ended(sessionID string, remaining int, reason string) {
	m.opts.Metrics.setActive(remaining)
	m.opts.Metrics.sessionEnded(reason)
	if m.opts.OnRemove != nil {
		m.opts.OnRemove(sessionID)
	}
	m.logf("session %s session_id=%s active=%d", reason, sessionID, remaining)
}

func (m *Manager) logf(format string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Printf(format, args...)
	}
}
