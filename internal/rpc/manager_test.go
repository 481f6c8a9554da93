package rpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
)

// fakeConn records calls and can emit events through the dialer's handler.
type fakeConn struct {
	mu        sync.Mutex
	prompts   []string
	cancelled int
	closed    bool
	emit      func(AgentEvent)
	promptErr error
}

func (f *fakeConn) Prompt(ctx context.Context, text string) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	err := f.promptErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.emit(AgentEvent{Type: EventAssistantMessage, TextDelta: "reply to " + text})
	return nil
}

func (f *fakeConn) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestManager(t *testing.T) (*Manager, *bus.MemoryEventBus, *fakeConn) {
	t.Helper()
	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	eventBus := bus.NewMemoryEventBus(log)

	conn := &fakeConn{}
	m := NewManager(eventBus, log, WithDialer(func(ctx context.Context, cwd string, onEvent func(AgentEvent)) (Conn, error) {
		conn.mu.Lock()
		conn.emit = onEvent
		conn.mu.Unlock()
		return conn, nil
	}))
	return m, eventBus, conn
}

func collect(t *testing.T, eventBus *bus.MemoryEventBus, subject string) <-chan *bus.Event {
	t.Helper()
	ch := make(chan *bus.Event, 16)
	sub, err := eventBus.Subscribe(subject, func(_ context.Context, ev *bus.Event) error {
		ch <- ev
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return ch
}

func TestCreateDuplicateFails(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "s1", Opts{Cwd: "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, "s1", s.Info().ID)
	assert.Equal(t, "/tmp", s.Info().Cwd)
	assert.True(t, s.Info().Alive)

	_, err = m.Create(ctx, "s1", Opts{})
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = m.Create(ctx, "", Opts{})
	assert.Error(t, err)
}

func TestPromptStreamsEventsAndIdles(t *testing.T) {
	m, eventBus, _ := newTestManager(t)
	ctx := context.Background()

	evCh := collect(t, eventBus, events.BuildRPCEventSubject("s1"))
	idleCh := collect(t, eventBus, events.BuildRPCIdleSubject("s1"))

	_, err := m.Create(ctx, "s1", Opts{})
	require.NoError(t, err)
	require.NoError(t, m.Prompt(ctx, "s1", "do the thing"))

	select {
	case ev := <-evCh:
		assert.Equal(t, "s1", ev.String("sessionId"))
	case <-time.After(2 * time.Second):
		t.Fatal("no rpc event")
	}
	select {
	case ev := <-idleCh:
		assert.Equal(t, "s1", ev.String("sessionId"))
	case <-time.After(2 * time.Second):
		t.Fatal("no idle event")
	}
}

func TestPromptUnknownAndDead(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Prompt(ctx, "missing", "x"), ErrSessionNotFound)

	_, err := m.Create(ctx, "s1", Opts{})
	require.NoError(t, err)
	m.Kill("s1")

	// Killed sessions are gone from the map entirely.
	assert.ErrorIs(t, m.Prompt(ctx, "s1", "x"), ErrSessionNotFound)
}

func TestKillEmitsAndReleases(t *testing.T) {
	m, eventBus, conn := newTestManager(t)
	ctx := context.Background()

	killedCh := collect(t, eventBus, events.BuildRPCKilledSubject("s1"))

	_, err := m.Create(ctx, "s1", Opts{})
	require.NoError(t, err)
	m.Kill("s1")

	select {
	case ev := <-killedCh:
		assert.Equal(t, "s1", ev.String("sessionId"))
	case <-time.After(2 * time.Second):
		t.Fatal("no killed event")
	}
	assert.True(t, conn.closed)
	assert.Empty(t, m.List())

	// Unknown ids are a no-op.
	m.Kill("s1")
}

func TestAbortForwardsCancel(t *testing.T) {
	m, _, conn := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "s1", Opts{})
	require.NoError(t, err)

	m.Abort(ctx, "s1")
	assert.Equal(t, 1, conn.cancelled)

	// Unknown ids are a no-op.
	m.Abort(ctx, "nope")
}

func TestListAndKillAll(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "a", Opts{Cwd: "/a"})
	require.NoError(t, err)
	_, err = m.Create(ctx, "b", Opts{Cwd: "/b"})
	require.NoError(t, err)

	infos := m.List()
	assert.Len(t, infos, 2)

	m.KillAll()
	assert.Empty(t, m.List())
}
