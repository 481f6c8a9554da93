package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/gateway/websocket"
	"github.com/arosstale/pi-builder-sub000/pkg/protocol"
)

// broadcaster bridges the event bus onto the WebSocket hub: every
// session, PTY, RPC, thread, and teams event becomes a frame sent to all
// connected clients.
type broadcaster struct {
	hub     *websocket.Hub
	bus     bus.EventBus
	workDir string
	logger  *logger.Logger
	subs    []bus.Subscription
}

func newBroadcaster(hub *websocket.Hub, eventBus bus.EventBus, workDir string, log *logger.Logger) *broadcaster {
	return &broadcaster{
		hub:     hub,
		bus:     eventBus,
		workDir: workDir,
		logger:  log.WithComponent("broadcaster"),
	}
}

// Start installs the bus subscriptions.
func (b *broadcaster) Start() error {
	subjects := map[string]func(*bus.Event){
		events.BuildSessionWildcardSubject():       b.onSessionEvent,
		events.BuildPtyDataWildcardSubject():       b.frameMapper(protocol.EventPtyData),
		events.BuildPtyExitWildcardSubject():       b.frameMapper(protocol.EventPtyExit),
		events.BuildRPCEventWildcardSubject():      b.frameMapper(protocol.EventRPCEvent),
		events.BuildRPCIdleWildcardSubject():       b.frameMapper(protocol.EventRPCIdle),
		events.BuildRPCKilledWildcardSubject():     b.frameMapper(protocol.EventRPCKilled),
		events.ThreadLaunched:                      b.frameMapper(protocol.EventThreadLaunched),
		events.BuildThreadEventWildcardSubject():   b.frameMapper(protocol.EventThreadEvent),
		events.BuildThreadIdleWildcardSubject():    b.frameMapper(protocol.EventThreadIdle),
		events.BuildThreadKilledWildcardSubject():  b.frameMapper(protocol.EventThreadKilled),
		events.TeamsCreated:                        b.frameMapper(protocol.EventTeamsCreated),
		events.TeamsSpawned:                        b.frameMapper(protocol.EventTeamsSpawned),
		events.BuildTeamsOutputWildcardSubject():   b.frameMapper(protocol.EventTeamsOutput),
		events.BuildTeamsExitWildcardSubject():     b.frameMapper(protocol.EventTeamsExit),
		events.BuildTeamsTaskWildcardSubject():     b.onTeamsTask,
		events.BuildTeamsMessageWildcardSubject():  b.frameMapper(protocol.EventTeamsMessage),
		events.BridgeEvent:                         b.frameMapper(protocol.EventBridge),
	}

	for subject, handle := range subjects {
		handle := handle
		sub, err := b.bus.Subscribe(subject, func(_ context.Context, ev *bus.Event) error {
			handle(ev)
			return nil
		})
		if err != nil {
			b.Stop()
			return err
		}
		b.subs = append(b.subs, sub)
	}
	return nil
}

// Stop removes the bus subscriptions.
func (b *broadcaster) Stop() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

// frameMapper builds a handler that spreads an event's data into a frame
// of the given type.
func (b *broadcaster) frameMapper(frameType string) func(*bus.Event) {
	return func(ev *bus.Event) {
		b.hub.Broadcast(frameFromEvent(frameType, ev))
	}
}

// onSessionEvent maps session.* subjects onto their frame types: the
// subject suffix is the frame type (session.chunk -> chunk), and
// session.error becomes a plain error frame.
func (b *broadcaster) onSessionEvent(ev *bus.Event) {
	frameType := strings.TrimPrefix(ev.Type, "session.")
	b.hub.Broadcast(frameFromEvent(frameType, ev))

	if ev.Type == events.SessionTurnComplete {
		go b.broadcastDiff()
	}
}

// onTeamsTask splits task events: watcher snapshots carry the whole task
// list (teams_tasks), single create/update events carry one task
// (teams_task).
func (b *broadcaster) onTeamsTask(ev *bus.Event) {
	frameType := protocol.EventTeamsTask
	if kind, _ := ev.Data["kind"].(string); kind == "changed" {
		frameType = protocol.EventTeamsTasks
	}
	b.hub.Broadcast(frameFromEvent(frameType, ev))
}

// broadcastDiff pushes the current stat diff to every client. Runs after
// each completed turn so UIs can show what the agent changed.
func (b *broadcaster) broadcastDiff() {
	diff := gitDiff(context.Background(), b.workDir, false)
	frame := protocol.New(protocol.EventDiff)
	if diff != nil {
		frame.Set("diff", *diff)
	} else {
		frame.Set("diff", nil)
	}
	b.hub.Broadcast(frame)
	b.logger.Debug("broadcast post-turn diff", zap.Bool("available", diff != nil))
}

// frameFromEvent copies an event's data fields into a frame.
func frameFromEvent(frameType string, ev *bus.Event) protocol.Frame {
	frame := protocol.New(frameType)
	for k, v := range ev.Data {
		frame.Set(k, v)
	}
	return frame
}
