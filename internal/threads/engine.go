// Package threads compiles thread specifications into slash commands and
// drives them through dedicated RPC agent sessions. A thread run owns
// exactly one session; its event stream is recorded on the run and
// re-published under thread subjects.
package threads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/rpc"
)

// ErrThreadNotFound is returned when a thread id is unknown.
var ErrThreadNotFound = errors.New("thread not found")

// SessionRunner is the slice of the RPC manager the engine composes
// sessions through.
type SessionRunner interface {
	Create(ctx context.Context, id string, opts rpc.Opts) (*rpc.Session, error)
	Prompt(ctx context.Context, id, text string) error
	Abort(ctx context.Context, id string)
	Kill(id string)
}

// Engine owns the map of thread runs.
type Engine struct {
	mu     sync.Mutex
	runs   map[string]*Run
	subs   map[string][]bus.Subscription
	rpc    SessionRunner
	bus    bus.EventBus
	logger *logger.Logger
}

// NewEngine creates a thread engine on top of the given session runner.
func NewEngine(runner SessionRunner, eventBus bus.EventBus, log *logger.Logger) *Engine {
	return &Engine{
		runs:   make(map[string]*Run),
		subs:   make(map[string][]bus.Subscription),
		rpc:    runner,
		bus:    eventBus,
		logger: log.WithComponent("threads"),
	}
}

// Launch compiles the spec, creates the thread's dedicated RPC session,
// wires its event stream, and sends the compiled command as the first
// prompt.
func (e *Engine) Launch(ctx context.Context, spec Spec) (*Run, error) {
	command, err := Compile(spec)
	if err != nil {
		return nil, err
	}

	threadID := mintThreadID()
	run := &Run{
		ID:        threadID,
		SessionID: threadID,
		Type:      spec.Type,
		Command:   command,
		Async:     spec.Async,
		StartedAt: time.Now().UTC(),
		status:    StatusRunning,
	}

	if _, err := e.rpc.Create(ctx, threadID, rpc.Opts{Cwd: spec.Cwd}); err != nil {
		return nil, fmt.Errorf("failed to create thread session: %w", err)
	}

	if err := e.subscribe(run); err != nil {
		e.rpc.Kill(threadID)
		return nil, fmt.Errorf("failed to subscribe thread events: %w", err)
	}

	e.mu.Lock()
	e.runs[threadID] = run
	e.mu.Unlock()

	if err := e.rpc.Prompt(ctx, threadID, command); err != nil {
		run.setStatus(StatusError)
		e.unsubscribe(threadID)
		return nil, fmt.Errorf("failed to start thread: %w", err)
	}

	e.publish(events.ThreadLaunched, map[string]interface{}{
		"threadId": threadID,
		"thread":   run.Snapshot(),
	})
	e.logger.Info("thread launched",
		zap.String("thread_id", threadID),
		zap.String("type", spec.Type),
		zap.String("command", command))
	return run, nil
}

// Get returns a run by id.
func (e *Engine) Get(id string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[id]
	return run, ok
}

// List returns every run's snapshot.
func (e *Engine) List() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Snapshot, 0, len(e.runs))
	for _, run := range e.runs {
		out = append(out, run.Snapshot())
	}
	return out
}

// ListAsync returns snapshots of async runs only.
func (e *Engine) ListAsync() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Snapshot, 0)
	for _, run := range e.runs {
		if run.Async {
			out = append(out, run.Snapshot())
		}
	}
	return out
}

// Kill terminates a thread's session. The run's recorded events stay
// queryable.
func (e *Engine) Kill(id string) error {
	run, ok := e.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	e.rpc.Kill(run.SessionID)
	return nil
}

// Abort cancels a thread's current prompt without killing the session.
func (e *Engine) Abort(ctx context.Context, id string) error {
	run, ok := e.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	e.rpc.Abort(ctx, run.SessionID)
	return nil
}

// Steer interrupts a running thread with a new prompt.
func (e *Engine) Steer(ctx context.Context, id, message string) error {
	run, ok := e.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	run.setStatus(StatusRunning)
	return e.rpc.Prompt(ctx, run.SessionID, message)
}

// CleanDead removes terminated runs from the map and returns how many were
// dropped.
func (e *Engine) CleanDead() int {
	e.mu.Lock()
	dropped := make([]string, 0)
	for id, run := range e.runs {
		switch run.Status() {
		case StatusIdle, StatusError, StatusKilled:
			delete(e.runs, id)
			dropped = append(dropped, id)
		}
	}
	e.mu.Unlock()

	for _, id := range dropped {
		e.unsubscribe(id)
	}
	return len(dropped)
}

// Close kills every live thread session.
func (e *Engine) Close() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		_ = e.Kill(id)
	}
}

// subscribe wires the run's RPC session stream into the run's event log
// and the thread subjects.
func (e *Engine) subscribe(run *Run) error {
	id := run.ID

	evSub, err := e.bus.Subscribe(events.BuildRPCEventSubject(id), func(_ context.Context, ev *bus.Event) error {
		agentEv, ok := ev.Data["event"].(rpc.AgentEvent)
		if !ok {
			return nil
		}
		threadEv := Event{
			Timestamp: ev.Timestamp,
			Kind:      agentEv.Type,
			TextDelta: agentEv.TextDelta,
			ToolName:  agentEv.ToolName,
			Raw:       agentEv.Raw,
		}
		run.appendEvent(threadEv)
		e.publish(events.BuildThreadEventSubject(id), map[string]interface{}{
			"threadId": id,
			"event":    threadEv,
		})
		return nil
	})
	if err != nil {
		return err
	}

	idleSub, err := e.bus.Subscribe(events.BuildRPCIdleSubject(id), func(_ context.Context, ev *bus.Event) error {
		if ev.String("error") != "" {
			run.setStatus(StatusError)
		} else {
			run.setStatus(StatusIdle)
		}
		e.publish(events.BuildThreadIdleSubject(id), map[string]interface{}{
			"threadId": id,
			"status":   run.Status(),
		})
		return nil
	})
	if err != nil {
		_ = evSub.Unsubscribe()
		return err
	}

	killedSub, err := e.bus.Subscribe(events.BuildRPCKilledSubject(id), func(_ context.Context, _ *bus.Event) error {
		run.setStatus(StatusKilled)
		e.unsubscribe(id)
		e.publish(events.BuildThreadKilledSubject(id), map[string]interface{}{
			"threadId": id,
		})
		return nil
	})
	if err != nil {
		_ = evSub.Unsubscribe()
		_ = idleSub.Unsubscribe()
		return err
	}

	e.mu.Lock()
	e.subs[id] = []bus.Subscription{evSub, idleSub, killedSub}
	e.mu.Unlock()
	return nil
}

// unsubscribe drops the run's bus subscriptions.
func (e *Engine) unsubscribe(id string) {
	e.mu.Lock()
	subs := e.subs[id]
	delete(e.subs, id)
	e.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
}

// publish sends a thread event on the bus.
func (e *Engine) publish(subject string, data map[string]interface{}) {
	event := bus.NewEvent(subject, "threads", data)
	if err := e.bus.Publish(context.Background(), subject, event); err != nil {
		e.logger.Warn("failed to publish thread event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// mintThreadID builds a thread id of the form thread-<unixms>-<6 hex>.
func mintThreadID() string {
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("thread-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
