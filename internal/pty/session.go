package pty

import (
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tuzig/vt10x"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
	"github.com/arosstale/pi-builder-sub000/internal/events"
)

// Session is one pseudo-terminal hosting an interactive agent process.
type Session struct {
	id        string
	agentID   string
	startedAt time.Time
	cmd       *exec.Cmd
	handle    Handle
	manager   *Manager

	mu         sync.Mutex
	cols       int
	rows       int
	alive      bool
	exitCode   int
	scrollback []byte
	term       vt10x.Terminal
	retention  *time.Timer
}

// ID returns the terminal id.
func (s *Session) ID() string { return s.id }

// Info snapshots the session's externally visible state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		AgentID:   s.agentID,
		Cols:      s.cols,
		Rows:      s.rows,
		Alive:     s.alive,
		StartedAt: s.startedAt,
	}
}

// Alive reports whether the process is still running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Write forwards input to the terminal.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	alive := s.alive
	s.mu.Unlock()
	if !alive {
		return ErrSessionDead
	}
	_, err := s.handle.Write(data)
	return err
}

// Resize updates the stored dimensions and forwards the new size to the
// PTY and the virtual screen.
func (s *Session) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return errors.New("cols and rows must be positive")
	}
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return ErrSessionDead
	}
	s.cols = cols
	s.rows = rows
	s.term.Resize(cols, rows)
	s.mu.Unlock()

	return s.handle.Resize(uint16(cols), uint16(rows))
}

// Kill marks the session dead and best-effort signals the child. Errors
// from an already-dead process are swallowed.
func (s *Session) Kill() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Scrollback returns the bounded output history.
func (s *Session) Scrollback() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.scrollback)
}

// Screen returns the rendered visible lines from the virtual terminal,
// trailing whitespace trimmed.
func (s *Session) Screen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, s.rows)
	for row := 0; row < s.rows; row++ {
		chars := make([]rune, 0, s.cols)
		for col := 0; col < s.cols; col++ {
			g := s.term.Cell(col, row)
			if g.Char == 0 {
				chars = append(chars, ' ')
			} else {
				chars = append(chars, g.Char)
			}
		}
		lines[row] = strings.TrimRight(string(chars), " ")
	}
	return lines
}

// readLoop pumps PTY output into the scrollback, the virtual screen, and
// the event bus until the terminal closes, then records the exit.
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.handle.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.mu.Lock()
			s.scrollback = appendScrollback(s.scrollback, chunk)
			_, _ = s.term.Write(chunk)
			s.mu.Unlock()

			s.manager.publish(events.BuildPtyDataSubject(s.id), map[string]interface{}{
				"termId": s.id,
				"data":   string(chunk),
			})
		}
		if err != nil {
			break
		}
	}

	exitCode := 0
	if err := s.cmd.Wait(); err != nil {
		exitCode = -1
		if s.cmd.ProcessState != nil {
			exitCode = s.cmd.ProcessState.ExitCode()
		}
	}
	_ = s.handle.Close()

	s.mu.Lock()
	s.alive = false
	s.exitCode = exitCode
	s.retention = time.AfterFunc(constants.PtyExitRetention, func() {
		s.manager.remove(s.id)
	})
	s.mu.Unlock()

	s.manager.publish(events.BuildPtyExitSubject(s.id), map[string]interface{}{
		"termId":   s.id,
		"exitCode": exitCode,
	})
}

// stopRetention cancels the post-exit removal timer, if armed.
func (s *Session) stopRetention() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retention != nil {
		s.retention.Stop()
	}
}

// appendScrollback appends a chunk and trims from the head so the buffer
// never exceeds the scrollback cap.
func appendScrollback(buf, chunk []byte) []byte {
	buf = append(buf, chunk...)
	if over := len(buf) - constants.PtyMaxScrollback; over > 0 {
		buf = buf[over:]
	}
	return buf
}
