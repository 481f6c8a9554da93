package threads

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/rpc"
)

// fakeRunner records session calls without spawning anything.
type fakeRunner struct {
	mu        sync.Mutex
	created   []string
	prompts   map[string][]string
	aborted   []string
	killed    []string
	createErr error
	promptErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{prompts: make(map[string][]string)}
}

func (f *fakeRunner) Create(_ context.Context, id string, _ rpc.Opts) (*rpc.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, id)
	return &rpc.Session{}, nil
}

func (f *fakeRunner) Prompt(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptErr != nil {
		return f.promptErr
	}
	f.prompts[id] = append(f.prompts[id], text)
	return nil
}

func (f *fakeRunner) Abort(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, id)
}

func (f *fakeRunner) Kill(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, id)
}

func (f *fakeRunner) promptsFor(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts[id]...)
}

func newTestEngine(t *testing.T) (*Engine, *fakeRunner, *bus.MemoryEventBus) {
	t.Helper()
	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	eventBus := bus.NewMemoryEventBus(log)
	runner := newFakeRunner()
	return NewEngine(runner, eventBus, log), runner, eventBus
}

func TestLaunchCreatesSessionAndPrompts(t *testing.T) {
	e, runner, eventBus := newTestEngine(t)

	var launched []*bus.Event
	sub, err := eventBus.Subscribe(events.ThreadLaunched, func(_ context.Context, ev *bus.Event) error {
		launched = append(launched, ev)
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	run, err := e.Launch(context.Background(), Spec{Type: TypeBase, Task: "do the thing", Cwd: "/tmp"})
	require.NoError(t, err)

	assert.Regexp(t, `^thread-\d+-[0-9a-f]{6}$`, run.ID)
	assert.Equal(t, run.ID, run.SessionID)
	assert.Equal(t, StatusRunning, run.Status())
	assert.Equal(t, []string{run.ID}, runner.created)
	assert.Equal(t, []string{"do the thing"}, runner.promptsFor(run.ID))
	require.Len(t, launched, 1)
	assert.Equal(t, run.ID, launched[0].String("threadId"))

	got, ok := e.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, run.ID, got.ID)
	assert.Len(t, e.List(), 1)
}

func TestLaunchFailures(t *testing.T) {
	e, runner, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Launch(ctx, Spec{Type: "bogus", Task: "t"})
	assert.Error(t, err)
	assert.Empty(t, runner.created)

	runner.createErr = errors.New("agent binary missing")
	_, err = e.Launch(ctx, Spec{Type: TypeBase, Task: "t"})
	assert.ErrorContains(t, err, "agent binary missing")

	runner.createErr = nil
	runner.promptErr = errors.New("session hung up")
	_, err = e.Launch(ctx, Spec{Type: TypeBase, Task: "t"})
	assert.ErrorContains(t, err, "session hung up")
}

func TestThreadRecordsAgentEvents(t *testing.T) {
	e, _, eventBus := newTestEngine(t)

	var forwarded []*bus.Event
	sub, err := eventBus.Subscribe(events.BuildThreadEventWildcardSubject(), func(_ context.Context, ev *bus.Event) error {
		forwarded = append(forwarded, ev)
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	run, err := e.Launch(context.Background(), Spec{Type: TypeBase, Task: "t"})
	require.NoError(t, err)

	subject := events.BuildRPCEventSubject(run.SessionID)
	ev := bus.NewEvent(subject, "rpc", map[string]interface{}{
		"sessionId": run.SessionID,
		"event":     rpc.AgentEvent{Type: rpc.EventAssistantMessage, TextDelta: "hello"},
	})
	require.NoError(t, eventBus.Publish(context.Background(), subject, ev))

	recorded := run.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, rpc.EventAssistantMessage, recorded[0].Kind)
	assert.Equal(t, "hello", recorded[0].TextDelta)
	require.Len(t, forwarded, 1)
	assert.Equal(t, run.ID, forwarded[0].String("threadId"))
	assert.Equal(t, 1, run.Snapshot().Events)
}

func TestThreadIdleAndCleanDead(t *testing.T) {
	e, _, eventBus := newTestEngine(t)
	ctx := context.Background()

	run, err := e.Launch(ctx, Spec{Type: TypeBase, Task: "t"})
	require.NoError(t, err)

	subject := events.BuildRPCIdleSubject(run.SessionID)
	ev := bus.NewEvent(subject, "rpc", map[string]interface{}{"sessionId": run.SessionID})
	require.NoError(t, eventBus.Publish(ctx, subject, ev))

	assert.Equal(t, StatusIdle, run.Status())
	assert.Equal(t, 1, e.CleanDead())
	_, ok := e.Get(run.ID)
	assert.False(t, ok)
}

func TestThreadIdleWithErrorMarksError(t *testing.T) {
	e, _, eventBus := newTestEngine(t)
	ctx := context.Background()

	run, err := e.Launch(ctx, Spec{Type: TypeBase, Task: "t"})
	require.NoError(t, err)

	subject := events.BuildRPCIdleSubject(run.SessionID)
	ev := bus.NewEvent(subject, "rpc", map[string]interface{}{
		"sessionId": run.SessionID,
		"error":     "prompt failed",
	})
	require.NoError(t, eventBus.Publish(ctx, subject, ev))

	assert.Equal(t, StatusError, run.Status())
}

func TestThreadKilled(t *testing.T) {
	e, runner, eventBus := newTestEngine(t)
	ctx := context.Background()

	run, err := e.Launch(ctx, Spec{Type: TypeBase, Task: "t"})
	require.NoError(t, err)

	require.NoError(t, e.Kill(run.ID))
	assert.Equal(t, []string{run.SessionID}, runner.killed)

	// The RPC manager confirms the kill on the bus.
	subject := events.BuildRPCKilledSubject(run.SessionID)
	ev := bus.NewEvent(subject, "rpc", map[string]interface{}{"sessionId": run.SessionID})
	require.NoError(t, eventBus.Publish(ctx, subject, ev))

	assert.Equal(t, StatusKilled, run.Status())
	assert.ErrorIs(t, e.Kill("thread-0-000000"), ErrThreadNotFound)
}

func TestSteerAndAbort(t *testing.T) {
	e, runner, eventBus := newTestEngine(t)
	ctx := context.Background()

	run, err := e.Launch(ctx, Spec{Type: TypeBase, Task: "t"})
	require.NoError(t, err)

	// Idle first, then steering resumes the run.
	subject := events.BuildRPCIdleSubject(run.SessionID)
	require.NoError(t, eventBus.Publish(ctx, subject,
		bus.NewEvent(subject, "rpc", map[string]interface{}{"sessionId": run.SessionID})))
	assert.Equal(t, StatusIdle, run.Status())

	require.NoError(t, e.Steer(ctx, run.ID, "focus on the tests"))
	assert.Equal(t, StatusRunning, run.Status())
	assert.Equal(t, []string{"t", "focus on the tests"}, runner.promptsFor(run.SessionID))

	require.NoError(t, e.Abort(ctx, run.ID))
	assert.Equal(t, []string{run.SessionID}, runner.aborted)

	assert.ErrorIs(t, e.Steer(ctx, "missing", "x"), ErrThreadNotFound)
	assert.ErrorIs(t, e.Abort(ctx, "missing"), ErrThreadNotFound)
}

func TestListAsync(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Launch(ctx, Spec{Type: TypeBase, Task: "sync one"})
	require.NoError(t, err)
	asyncRun, err := e.Launch(ctx, Spec{Type: TypeBase, Task: "async one", Async: true})
	require.NoError(t, err)

	async := e.ListAsync()
	require.Len(t, async, 1)
	assert.Equal(t, asyncRun.ID, async[0].ID)
	assert.True(t, async[0].Async)
}
