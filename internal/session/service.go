// Package session implements the conversational orchestrator. It owns a
// single session: user messages run through a middleware chain, a wrapper
// is selected (or forced by middleware), stdout streams back as events,
// and each turn lands in the in-memory history and the optional on-disk
// log. Concurrent messages are serialised through a FIFO queue so at most
// one turn executes at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/registry"
	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
	"github.com/arosstale/pi-builder-sub000/internal/common/config"
	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/session/history"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a running session.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotStarted is returned when Close is called before Start.
	ErrNotStarted = errors.New("session not started")

	// ErrBusy is returned by Stream while a turn is in flight.
	ErrBusy = errors.New("session is busy")
)

// queuePreviewChars caps the prompt excerpt carried by queued events and
// queue listings.
const queuePreviewChars = 80

// HistoryStore persists chat messages across restarts. A nil store (the
// ":memory:" configuration) skips persistence entirely.
type HistoryStore interface {
	Upsert(ctx context.Context, rec history.Record) error
	LoadRecent(ctx context.Context, limit int) ([]history.Record, error)
	Clear(ctx context.Context) error
	Close() error
}

// Service is the session orchestrator.
type Service struct {
	id       string
	cfg      config.SessionConfig
	workDir  string
	registry *registry.Registry
	bus      bus.EventBus
	store    HistoryStore
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	running     bool
	history     []ChatMessage
	queue       []*queuedMessage
	isExecuting bool
	mode        string
	middleware  []Middleware
}

// New creates a session orchestrator. The session id is freshly generated;
// persistence opens in Start.
func New(cfg *config.Config, reg *registry.Registry, eventBus bus.EventBus, log *logger.Logger) *Service {
	mode := cfg.Session.Mode
	if mode == "" {
		mode = ModeExecute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		id:       uuid.New().String(),
		cfg:      cfg.Session,
		workDir:  cfg.Server.WorkDir,
		registry: reg,
		bus:      eventBus,
		logger:   log.WithComponent("session"),
		ctx:      ctx,
		cancel:   cancel,
		mode:     mode,
	}
}

// SetStore injects a persistence layer before Start. Start leaves an
// injected store in place instead of opening one from configuration.
func (s *Service) SetStore(store HistoryStore) {
	s.store = store
}

// Start opens the persistence layer, restores recent history, and installs
// the built-in middleware.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.mu.Unlock()

	if s.store == nil && s.cfg.DB != "" && s.cfg.DB != ":memory:" {
		store, err := history.Open(s.cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open session history store: %w", err)
		}
		s.store = store
	}

	if s.store != nil {
		records, err := s.store.LoadRecent(ctx, constants.HistoryLoadLimit)
		if err != nil {
			s.logger.Warn("failed to load session history", zap.Error(err))
		} else {
			restored := make([]ChatMessage, 0, len(records))
			for _, rec := range records {
				restored = append(restored, messageFromRecord(rec))
			}
			s.mu.Lock()
			s.history = restored
			s.mu.Unlock()
		}
	}

	s.Use(AgentRouteMiddleware())

	s.logger.Info("session started",
		zap.String("session_id", s.id),
		zap.String("mode", s.Mode()),
		zap.Bool("persistent", s.store != nil))
	return nil
}

// Close rejects pending waiters, cancels any in-flight turn, and shuts the
// persistence layer.
func (s *Service) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.ClearQueue()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("failed to close history store: %w", err)
		}
	}
	s.logger.Info("session closed", zap.String("session_id", s.id))
	return nil
}

// ID returns the session id.
func (s *Service) ID() string { return s.id }

// Use appends a middleware to the chain.
func (s *Service) Use(mw Middleware) {
	s.mu.Lock()
	s.middleware = append(s.middleware, mw)
	s.mu.Unlock()
}

// SetMode switches between execute and plan mode.
func (s *Service) SetMode(mode string) error {
	switch mode {
	case ModeExecute, ModePlan:
	default:
		return fmt.Errorf("invalid mode %q", mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

// Mode returns the current session mode.
func (s *Service) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsExecuting reports whether a turn is currently in flight.
func (s *Service) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isExecuting
}

// GetHistory returns a copy of the session history.
func (s *Service) GetHistory() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.history...)
}

// ClearHistory drops the in-memory history and the persisted log.
func (s *Service) ClearHistory(ctx context.Context) {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear persisted history", zap.Error(err))
		}
	}
}

// GetQueue returns a preview of queued prompt texts in order.
func (s *Service) GetQueue() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.queue))
	for _, qm := range s.queue {
		out = append(out, truncate(qm.text, queuePreviewChars))
	}
	return out
}

// ClearQueue rejects every queued waiter with a "queue cleared" error and
// returns how many were dropped.
func (s *Service) ClearQueue() int {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, qm := range pending {
		s.deliver(qm, TurnResult{Err: errors.New("queue cleared")})
	}
	return len(pending)
}

// AvailableAgents reports the currently healthy wrappers, probing in
// parallel where the cache has expired.
func (s *Service) AvailableAgents(ctx context.Context) []wrappers.Wrapper {
	return s.registry.AvailableAgents(ctx)
}

// AgentHealth probes every wrapper and reports health by id.
func (s *Service) AgentHealth(ctx context.Context) map[string]bool {
	return s.registry.CheckHealth(ctx)
}

// ProcessMessage runs a full conversational turn for userText. While a turn
// is in flight the message queues and executes in FIFO order. The returned
// channel delivers the turn's outcome either way.
func (s *Service) ProcessMessage(userText string) <-chan TurnResult {
	qm := &queuedMessage{text: userText, done: make(chan TurnResult, 1)}

	s.mu.Lock()
	if s.isExecuting {
		s.queue = append(s.queue, qm)
		queueLen := len(s.queue)
		s.mu.Unlock()

		s.publish(events.SessionQueued, map[string]interface{}{
			"queueLength": queueLen,
			"preview":     truncate(userText, queuePreviewChars),
		})
		return qm.done
	}
	s.isExecuting = true
	s.mu.Unlock()

	go s.executeTurn(qm)
	return qm.done
}

// Stream runs userText as a raw streaming request: chunks go straight to
// the caller and history is not updated. It shares the execution flag with
// ProcessMessage and fails with ErrBusy while a turn is in flight. The
// caller must drain the stream; the flag clears when the stream finishes.
func (s *Service) Stream(ctx context.Context, userText string) (*wrappers.Stream, error) {
	s.mu.Lock()
	if s.isExecuting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.isExecuting = true
	contextMsgs := append([]ChatMessage(nil), s.history...)
	s.mu.Unlock()

	task := wrappers.Task{
		Prompt:     buildPrompt(s.effectiveSystemPrompt(), contextMsgs, userText),
		WorkDir:    s.workDir,
		Capability: InferCapability(userText),
		TimeoutMs:  s.cfg.TimeoutMs,
	}

	stream := s.registry.ExecuteStream(ctx, task)
	go func() {
		stream.Wait()
		s.drainNext()
	}()
	return stream, nil
}

// executeTurn runs one conversational turn through its three phases:
// record the user message, infer capability and run middleware, then
// select a wrapper and stream its output. Every path ends the turn with
// turn_complete, resolves the waiter, and drains the queue.
func (s *Service) executeTurn(qm *queuedMessage) {
	ctx := s.ctx

	userMsg := newMessage(RoleUser, qm.text, "", 0)

	s.mu.Lock()
	contextMsgs := append([]ChatMessage(nil), s.history...)
	s.history = append(s.history, userMsg)
	s.mu.Unlock()

	s.publish(events.SessionUserMessage, map[string]interface{}{
		"message": userMsg,
	})
	s.persist(ctx, userMsg)

	capability := InferCapability(qm.text)
	mctx := MiddlewareContext{
		SessionID:  s.id,
		History:    append(contextMsgs, userMsg),
		Capability: capability,
	}

	finalPrompt := qm.text
	forcedAgent := ""
	for _, mw := range s.middlewareChain() {
		verdict := mw(mctx, finalPrompt)
		switch verdict.Kind {
		case VerdictTransform:
			finalPrompt = verdict.Prompt
		case VerdictBlock:
			s.publishError(verdict.Reason)
			s.failTurn(ctx, qm, "[blocked by middleware]",
				fmt.Errorf("blocked by middleware: %s", verdict.Reason))
			return
		case VerdictRoute:
			forcedAgent = verdict.AgentID
			if verdict.Prompt != "" {
				finalPrompt = verdict.Prompt
			}
		}
		if forcedAgent != "" {
			break
		}
	}

	task := wrappers.Task{
		Prompt:     buildPrompt(s.effectiveSystemPrompt(), contextMsgs, finalPrompt),
		WorkDir:    s.workDir,
		Capability: capability,
		TimeoutMs:  s.cfg.TimeoutMs,
	}

	w := s.selectWrapper(ctx, task, forcedAgent)
	if w == nil {
		msg := "no available agent found"
		if forcedAgent != "" {
			msg = fmt.Sprintf("agent %q is not registered", forcedAgent)
		}
		s.publishError(msg)
		s.failTurn(ctx, qm, "Error: "+msg, errors.New(msg))
		return
	}

	s.publish(events.SessionAgentStart, map[string]interface{}{
		"agent":      w.ID(),
		"capability": capability,
	})
	s.logger.Info("turn started",
		zap.String("agent", w.ID()),
		zap.String("capability", capability))

	start := time.Now()
	stream, err := w.ExecuteStream(ctx, task)
	if err != nil {
		stream = wrappers.SyntheticStream(&wrappers.Result{
			AgentID:  w.ID(),
			Status:   wrappers.StatusError,
			Stderr:   err.Error(),
			ExitCode: -1,
		})
	}

	for chunk := range stream.Chunks() {
		s.publish(events.SessionChunk, map[string]interface{}{
			"agent": w.ID(),
			"text":  chunk,
		})
	}
	result := stream.Wait()
	durationMs := time.Since(start).Milliseconds()

	s.publish(events.SessionAgentEnd, map[string]interface{}{
		"agent":      w.ID(),
		"status":     string(result.Status),
		"durationMs": durationMs,
	})

	content := result.Output
	if content == "" && !result.OK() {
		content = "Error: " + result.Stderr
	}
	assistantMsg := newMessage(RoleAssistant, content, w.ID(), durationMs)

	s.mu.Lock()
	s.history = append(s.history, assistantMsg)
	s.mu.Unlock()
	s.persist(ctx, assistantMsg)

	s.publish(events.SessionTurnComplete, map[string]interface{}{
		"message":    assistantMsg,
		"agent":      w.ID(),
		"status":     string(result.Status),
		"durationMs": durationMs,
	})

	s.deliver(qm, TurnResult{Message: &assistantMsg, Result: result})
	s.drainNext()
}

// failTurn ends a turn without executing an agent: a synthetic assistant
// message lands in history and turn_complete still fires so clients
// advance.
func (s *Service) failTurn(ctx context.Context, qm *queuedMessage, content string, err error) {
	msg := newMessage(RoleAssistant, content, "", 0)

	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()
	s.persist(ctx, msg)

	s.publish(events.SessionTurnComplete, map[string]interface{}{
		"message":    msg,
		"agent":      "",
		"status":     string(wrappers.StatusError),
		"durationMs": int64(0),
	})

	s.deliver(qm, TurnResult{Message: &msg, Err: err})
	s.drainNext()
}

// drainNext pops the next queued message and runs it, keeping the
// execution flag set across the hand-off. An empty queue clears the flag.
func (s *Service) drainNext() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.isExecuting = false
		s.mu.Unlock()
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	go s.executeTurn(next)
}

// deliver resolves a waiter exactly once. The result channel is buffered
// so delivery never blocks the turn loop.
func (s *Service) deliver(qm *queuedMessage, tr TurnResult) {
	qm.done <- tr
	close(qm.done)
}

// selectWrapper resolves the wrapper for a turn. A middleware-forced agent
// is looked up directly and skips health checks; otherwise the registry's
// selection rules apply.
func (s *Service) selectWrapper(ctx context.Context, task wrappers.Task, forced string) wrappers.Wrapper {
	if forced != "" {
		w, ok := s.registry.Get(forced)
		if !ok {
			return nil
		}
		return w
	}
	return s.registry.SelectForTask(ctx, task)
}

// middlewareChain snapshots the chain so a turn sees a stable list even if
// Use runs concurrently.
func (s *Service) middlewareChain() []Middleware {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Middleware(nil), s.middleware...)
}

// effectiveSystemPrompt returns the configured system prompt, with the
// planning instruction prepended in plan mode.
func (s *Service) effectiveSystemPrompt() string {
	if s.Mode() != ModePlan {
		return s.cfg.SystemPrompt
	}
	if s.cfg.SystemPrompt == "" {
		return planInstruction
	}
	return planInstruction + "\n\n" + s.cfg.SystemPrompt
}

// publish broadcasts a session event. Failures log and never abort a turn.
func (s *Service) publish(eventType string, data map[string]interface{}) {
	event := bus.NewEvent(eventType, "session", data)
	if err := s.bus.Publish(s.ctx, eventType, event); err != nil {
		s.logger.Warn("failed to publish session event",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func (s *Service) publishError(message string) {
	s.publish(events.SessionError, map[string]interface{}{
		"message": message,
	})
}

// persist writes a message to the history store. Writes are best-effort.
func (s *Service) persist(ctx context.Context, msg ChatMessage) {
	if s.store == nil {
		return
	}
	if err := s.store.Upsert(ctx, recordFromMessage(msg)); err != nil {
		s.logger.Warn("failed to persist chat message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

func messageFromRecord(rec history.Record) ChatMessage {
	return ChatMessage{
		ID:         rec.MessageID,
		Role:       rec.Role,
		Content:    rec.Content,
		AgentUsed:  rec.AgentUsed,
		DurationMs: rec.DurationMs,
		Timestamp:  rec.Timestamp,
	}
}

func recordFromMessage(msg ChatMessage) history.Record {
	return history.Record{
		MessageID:  msg.ID,
		Role:       msg.Role,
		Content:    msg.Content,
		AgentUsed:  msg.AgentUsed,
		DurationMs: msg.DurationMs,
		Timestamp:  msg.Timestamp,
	}
}
