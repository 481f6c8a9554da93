// Package rpc maintains long-lived named agent sessions. Each session wraps
// one agent process speaking ACP over stdio; prompts stream normalized
// events onto the bus keyed by session id. Threads compose these sessions;
// WebSocket clients can also drive them directly.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
)

var (
	// ErrSessionExists is returned by Create for a duplicate session id.
	ErrSessionExists = errors.New("rpc session already exists")

	// ErrSessionNotFound is returned by Prompt for an unknown session id.
	ErrSessionNotFound = errors.New("rpc session not found")

	// ErrSessionDead is returned by Prompt after a session was killed.
	ErrSessionDead = errors.New("rpc session is not alive")
)

// Conn is one live connection to an agent process. Prompt blocks until the
// turn completes; Cancel interrupts the current turn without ending the
// session; Close terminates the agent.
type Conn interface {
	Prompt(ctx context.Context, text string) error
	Cancel(ctx context.Context) error
	Close() error
}

// Dialer starts an agent connection in the given working directory. Every
// streamed update lands on onEvent.
type Dialer func(ctx context.Context, cwd string, onEvent func(AgentEvent)) (Conn, error)

// Opts configures a new session.
type Opts struct {
	Cwd string
}

// Info is the externally visible state of one session.
type Info struct {
	ID        string    `json:"id"`
	Cwd       string    `json:"cwd,omitempty"`
	Alive     bool      `json:"alive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is one long-lived agent session.
type Session struct {
	id        string
	cwd       string
	createdAt time.Time
	conn      Conn

	mu    sync.Mutex
	alive bool
}

// Info snapshots the session state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{ID: s.id, Cwd: s.cwd, Alive: s.alive, CreatedAt: s.createdAt}
}

// Manager owns the session map.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	dial     Dialer
	bus      bus.EventBus
	logger   *logger.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithDialer replaces the default ACP dialer. Tests use this to avoid
// spawning a real agent process.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithAgentCommand configures the agent binary the default dialer spawns.
func WithAgentCommand(binary string, args ...string) Option {
	return func(m *Manager) {
		m.dial = acpDialer(binary, args, m.logger)
	}
}

// NewManager creates a session manager. Without options, sessions dial the
// default ACP agent binary.
func NewManager(eventBus bus.EventBus, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		bus:      eventBus,
		logger:   log.WithComponent("rpc"),
	}
	m.dial = acpDialer(defaultAgentBinary, nil, m.logger)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new agent session under the given id. Duplicate ids fail.
func (m *Manager) Create(ctx context.Context, id string, opts Opts) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.mu.Unlock()

	conn, err := m.dial(ctx, opts.Cwd, func(ev AgentEvent) {
		m.publish(events.BuildRPCEventSubject(id), map[string]interface{}{
			"sessionId": id,
			"event":     ev,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start agent session: %w", err)
	}

	s := &Session{
		id:        id,
		cwd:       opts.Cwd,
		createdAt: time.Now().UTC(),
		conn:      conn,
		alive:     true,
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("rpc session created",
		zap.String("session_id", id),
		zap.String("cwd", opts.Cwd))
	return s, nil
}

// Prompt forwards a prompt to a session. The turn runs asynchronously; an
// idle event fires when it completes.
func (m *Manager) Prompt(ctx context.Context, id, text string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	alive := s.alive
	s.mu.Unlock()
	if !alive {
		return fmt.Errorf("%w: %s", ErrSessionDead, id)
	}

	go func() {
		if err := s.conn.Prompt(ctx, text); err != nil {
			m.logger.Warn("rpc prompt failed",
				zap.String("session_id", id),
				zap.Error(err))
			m.publish(events.BuildRPCIdleSubject(id), map[string]interface{}{
				"sessionId": id,
				"error":     err.Error(),
			})
			return
		}
		m.publish(events.BuildRPCIdleSubject(id), map[string]interface{}{
			"sessionId": id,
		})
	}()
	return nil
}

// Abort cancels a session's current turn without ending the session.
// Unknown ids are a no-op.
func (m *Manager) Abort(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := s.conn.Cancel(ctx); err != nil {
		m.logger.Warn("rpc abort failed",
			zap.String("session_id", id),
			zap.Error(err))
	}
}

// Kill terminates a session and releases its resources. Unknown ids are a
// no-op.
func (m *Manager) Kill(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()

	if err := s.conn.Close(); err != nil {
		m.logger.Warn("rpc session close failed",
			zap.String("session_id", id),
			zap.Error(err))
	}
	m.publish(events.BuildRPCKilledSubject(id), map[string]interface{}{
		"sessionId": id,
	})
	m.logger.Info("rpc session killed", zap.String("session_id", id))
}

// List returns every session's state.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	return out
}

// KillAll terminates every session. Used on gateway shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Kill(id)
	}
}

// publish sends an RPC event on the bus. Failures log and never stall the
// agent stream.
func (m *Manager) publish(subject string, data map[string]interface{}) {
	event := bus.NewEvent(subject, "rpc", data)
	if err := m.bus.Publish(context.Background(), subject, event); err != nil {
		m.logger.Warn("failed to publish rpc event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
