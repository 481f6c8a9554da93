// Package pty allocates pseudo-terminals for interactive agent panes. Each
// session streams raw terminal bytes onto the event bus, keeps a bounded
// scrollback buffer, and feeds a virtual terminal so the rendered screen can
// be fetched without replaying the byte stream. Dead sessions stay queryable
// for a grace period so late subscribers can still read scrollback.
package pty

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tuzig/vt10x"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
)

var (
	// ErrSessionNotFound is returned when a terminal id is unknown.
	ErrSessionNotFound = errors.New("pty session not found")

	// ErrSessionDead is returned by Write and Resize on an exited terminal.
	ErrSessionDead = errors.New("pty session is not alive")

	// ErrSessionExists is returned by Spawn for a duplicate terminal id.
	ErrSessionExists = errors.New("pty session already exists")
)

// Config describes a terminal to spawn. An empty ID asks the manager to
// mint one; Cols and Rows fall back to the defaults when zero.
type Config struct {
	ID      string
	AgentID string
	Cmd     []string
	Cwd     string
	Env     map[string]string
	Cols    int
	Rows    int
}

// Info is the externally visible state of one terminal.
type Info struct {
	ID        string    `json:"termId"`
	AgentID   string    `json:"agentId"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	Alive     bool      `json:"alive"`
	StartedAt time.Time `json:"startedAt"`
}

// Manager owns the live terminal sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	bus      bus.EventBus
	logger   *logger.Logger
}

// NewManager creates an empty PTY manager.
func NewManager(eventBus bus.EventBus, log *logger.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		bus:      eventBus,
		logger:   log.WithComponent("pty"),
	}
}

// Spawn starts the command in a fresh pseudo-terminal and begins streaming
// its output. The command runs under the platform shell so path lookup and
// quoting behave the way an interactive user expects.
func (m *Manager) Spawn(cfg Config) (*Session, error) {
	if len(cfg.Cmd) == 0 {
		return nil, errors.New("cmd is required")
	}
	if cfg.ID == "" {
		cfg.ID = "pty-" + uuid.New().String()[:8]
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols <= 0 {
		cols = constants.PtyDefaultCols
	}
	if rows <= 0 {
		rows = constants.PtyDefaultRows
	}

	m.mu.Lock()
	if _, exists := m.sessions[cfg.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, cfg.ID)
	}
	m.mu.Unlock()

	cmd := shellCommand(cfg.Cmd)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	env := append(os.Environ(), "TERM=xterm-256color")
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	handle, err := startWithSize(cmd, cols, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to start pty: %w", err)
	}

	s := &Session{
		id:        cfg.ID,
		agentID:   cfg.AgentID,
		cols:      cols,
		rows:      rows,
		alive:     true,
		startedAt: time.Now().UTC(),
		handle:    handle,
		cmd:       cmd,
		term:      vt10x.New(vt10x.WithSize(cols, rows)),
		manager:   m,
	}

	m.mu.Lock()
	m.sessions[cfg.ID] = s
	m.mu.Unlock()

	go s.readLoop()

	m.logger.Info("pty spawned",
		zap.String("term_id", cfg.ID),
		zap.String("agent_id", cfg.AgentID),
		zap.Strings("cmd", cfg.Cmd))
	return s, nil
}

// Get returns a session by id, including dead sessions still inside the
// retention window.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Write forwards input bytes to a live terminal.
func (m *Manager) Write(id string, data []byte) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Write(data)
}

// Resize updates a live terminal's dimensions.
func (m *Manager) Resize(id string, cols, rows int) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Resize(cols, rows)
}

// Kill terminates a terminal's process. Unknown ids are a no-op.
func (m *Manager) Kill(id string) {
	if s, ok := m.Get(id); ok {
		s.Kill()
	}
}

// Screen returns the rendered visible lines of a terminal.
func (m *Manager) Screen(id string) ([]string, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Screen(), nil
}

// Scrollback returns the bounded output history of a terminal.
func (m *Manager) Scrollback(id string) (string, error) {
	s, ok := m.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Scrollback(), nil
}

// List returns every session, live and retained, in no particular order.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	return out
}

// CloseAll kills every session and drops the retention timers. Used on
// gateway shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Kill()
		s.stopRetention()
	}
}

// remove drops a session from the map after its retention window.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.logger.Debug("pty session removed", zap.String("term_id", id))
}

// publish sends a PTY event on the bus. Failures log and never stall the
// read loop.
func (m *Manager) publish(subject string, data map[string]interface{}) {
	event := bus.NewEvent(subject, "pty", data)
	if err := m.bus.Publish(context.Background(), subject, event); err != nil {
		m.logger.Warn("failed to publish pty event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
