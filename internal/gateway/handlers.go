package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/registry"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/gateway/websocket"
	"github.com/arosstale/pi-builder-sub000/internal/pty"
	"github.com/arosstale/pi-builder-sub000/internal/rpc"
	"github.com/arosstale/pi-builder-sub000/internal/session"
	"github.com/arosstale/pi-builder-sub000/internal/teams"
	"github.com/arosstale/pi-builder-sub000/internal/threads"
	"github.com/arosstale/pi-builder-sub000/pkg/protocol"
)

// handlers dispatches inbound frames to the gateway's components. Every
// method returns the direct reply for the requesting client; broadcasts
// travel separately through the bus-fed broadcaster.
type handlers struct {
	session  *session.Service
	registry *registry.Registry
	pty      *pty.Manager
	rpc      *rpc.Manager
	threads  *threads.Engine
	teams    *teams.Driver
	workDir  string
	logger   *logger.Logger

	// broadcast pushes a frame to every connected client.
	broadcast func(protocol.Frame)
}

var _ websocket.Handler = (*handlers)(nil)

// HandleFrame routes one parsed frame. A panicking handler answers with an
// error frame instead of tearing down the connection.
func (h *handlers) HandleFrame(ctx context.Context, c *websocket.Client, in *protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler panic",
				zap.String("method", in.Type),
				zap.Any("panic", r))
			c.Send(protocol.Error(in.ID, fmt.Sprintf("%v", r)))
		}
	}()

	reply, err := h.dispatch(ctx, in)
	if err != nil {
		c.Send(protocol.Error(in.ID, err.Error()))
		return
	}
	if reply != nil {
		c.Send(reply)
	}
}

func (h *handlers) dispatch(ctx context.Context, in *protocol.Inbound) (protocol.Frame, error) {
	switch in.Type {
	// Session
	case protocol.MethodSend:
		return h.handleSend(in)
	case protocol.MethodHealth:
		return protocol.New(protocol.EventHealth).
			Set("agents", h.session.AgentHealth(ctx)).
			WithID(in.ID), nil
	case protocol.MethodAgents:
		return protocol.New(protocol.EventAgents).
			Set("agents", h.agentList(ctx)).
			WithID(in.ID), nil
	case protocol.MethodHistory:
		return protocol.New(protocol.EventHistory).
			Set("messages", h.session.GetHistory()).
			WithID(in.ID), nil
	case protocol.MethodClear:
		h.session.ClearHistory(ctx)
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodDiff:
		return h.handleDiff(ctx, in, false)
	case protocol.MethodDiffFull:
		return h.handleDiff(ctx, in, true)
	case protocol.MethodQueue:
		return protocol.New(protocol.EventQueue).
			Set("queue", h.session.GetQueue()).
			WithID(in.ID), nil
	case protocol.MethodMode:
		return h.handleMode(in)
	case protocol.MethodPreview:
		return h.handlePreview(in)

	// PTY terminals
	case protocol.MethodPtySpawn:
		return h.handlePtySpawn(in)
	case protocol.MethodPtyInput:
		return h.handlePtyInput(in)
	case protocol.MethodPtyResize:
		return h.handlePtyResize(in)
	case protocol.MethodPtyKill:
		var p protocol.PtyIDParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		h.pty.Kill(p.TermID)
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodPtyList:
		return protocol.New(protocol.EventPtyList).
			Set("terminals", h.pty.List()).
			WithID(in.ID), nil
	case protocol.MethodPtyScreen:
		return h.handlePtyScreen(in)

	// RPC agent sessions
	case protocol.MethodRPCNew:
		return h.handleRPCNew(ctx, in)
	case protocol.MethodRPCPrompt:
		return h.handleRPCPrompt(ctx, in)
	case protocol.MethodRPCAbort:
		var p protocol.RPCIDParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		h.rpc.Abort(ctx, p.SessionID)
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodRPCKill:
		var p protocol.RPCIDParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		h.rpc.Kill(p.SessionID)
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodRPCList:
		return protocol.New(protocol.EventRPCSessions).
			Set("sessions", h.rpc.List()).
			WithID(in.ID), nil

	// Teams
	case protocol.MethodTeamsList:
		states, err := h.teams.GetAllTeamStates()
		if err != nil {
			return nil, err
		}
		return protocol.New(protocol.EventTeamsList).
			Set("teams", states).
			WithID(in.ID), nil
	case protocol.MethodTeamsCreate:
		return h.handleTeamsCreate(in)
	case protocol.MethodTeamsSpawn:
		return h.handleTeamsSpawn(ctx, in)
	case protocol.MethodTeamsTaskUpdate:
		return h.handleTeamsTaskUpdate(in)
	case protocol.MethodTeamsMessage:
		return h.handleTeamsMessage(in)
	case protocol.MethodTeamsBroadcast:
		return h.handleTeamsBroadcast(in)
	case protocol.MethodTeamsWatch:
		var p protocol.TeamsNameParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		h.teams.Watch(p.Name)
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodTeamsUnwatch:
		var p protocol.TeamsNameParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		h.teams.Unwatch(p.Name)
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodTeamsDelete:
		var p protocol.TeamsNameParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		if err := h.teams.DeleteTeam(p.Name); err != nil {
			return nil, err
		}
		return protocol.OK(in.ID, in.Type), nil

	// Threads
	case protocol.MethodThreadLaunch:
		return h.handleThreadLaunch(ctx, in)
	case protocol.MethodThreadList:
		return protocol.New(protocol.EventThreadList).
			Set("threads", h.threads.List()).
			WithID(in.ID), nil
	case protocol.MethodThreadKill:
		var p protocol.ThreadIDParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		if err := h.threads.Kill(p.ThreadID); err != nil {
			return nil, err
		}
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodThreadAbort:
		var p protocol.ThreadIDParams
		if err := in.Bind(&p); err != nil {
			return nil, err
		}
		if err := h.threads.Abort(ctx, p.ThreadID); err != nil {
			return nil, err
		}
		return protocol.OK(in.ID, in.Type), nil
	case protocol.MethodThreadSteer:
		return h.handleThreadSteer(ctx, in)
	case protocol.MethodThreadPreset:
		return h.handleThreadPreset(in)
	case protocol.MethodThreadAgents:
		return protocol.New(protocol.EventThreadAgents).
			Set("agents", h.agentList(ctx)).
			WithID(in.ID), nil
	case protocol.MethodThreadAsyncList:
		return protocol.New(protocol.EventThreadAsyncList).
			Set("threads", h.threads.ListAsync()).
			WithID(in.ID), nil
	}

	return nil, fmt.Errorf("%s", protocol.UnknownMethod(in.Type))
}

func (h *handlers) handleSend(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.SendParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(p.Message)
	if text == "" {
		return nil, fmt.Errorf("message is required")
	}
	// The turn runs asynchronously; its events reach every client through
	// the broadcaster.
	h.session.ProcessMessage(text)
	return protocol.OK(in.ID, in.Type), nil
}

func (h *handlers) handleDiff(ctx context.Context, in *protocol.Inbound, full bool) (protocol.Frame, error) {
	frameType := protocol.EventDiff
	if full {
		frameType = protocol.EventDiffFull
	}
	frame := protocol.New(frameType).WithID(in.ID)
	if diff := gitDiff(ctx, h.workDir, full); diff != nil {
		frame.Set("diff", *diff)
	} else {
		frame.Set("diff", nil)
	}
	return frame, nil
}

func (h *handlers) handleMode(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.ModeParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if err := h.session.SetMode(p.Mode); err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventMode).
		Set("mode", h.session.Mode()).
		WithID(in.ID), nil
}

func (h *handlers) handlePreview(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.PreviewParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if p.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	// Previews are for every connected UI, not just the requester.
	h.broadcast(protocol.New(protocol.EventPreview).Set("url", p.URL))
	return protocol.OK(in.ID, in.Type), nil
}

func (h *handlers) handlePtySpawn(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.PtySpawnParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if p.AgentID == "" || len(p.Cmd) == 0 {
		return nil, fmt.Errorf("agentId and cmd are required")
	}

	s, err := h.pty.Spawn(pty.Config{
		ID:      p.TermID,
		AgentID: p.AgentID,
		Cmd:     p.Cmd,
		Cwd:     p.Cwd,
		Env:     p.Env,
		Cols:    p.Cols,
		Rows:    p.Rows,
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventPtySpawned).
		Set("terminal", s.Info()).
		WithID(in.ID), nil
}

func (h *handlers) handlePtyInput(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.PtyInputParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if err := h.pty.Write(p.TermID, []byte(p.Data)); err != nil {
		return nil, err
	}
	return protocol.OK(in.ID, in.Type), nil
}

func (h *handlers) handlePtyResize(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.PtyResizeParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if err := h.pty.Resize(p.TermID, p.Cols, p.Rows); err != nil {
		return nil, err
	}
	return protocol.OK(in.ID, in.Type), nil
}

func (h *handlers) handlePtyScreen(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.PtyIDParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	screen, err := h.pty.Screen(p.TermID)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventPtyScreen).
		Set("termId", p.TermID).
		Set("screen", screen).
		WithID(in.ID), nil
}

func (h *handlers) handleRPCNew(ctx context.Context, in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.RPCNewParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, fmt.Errorf("sessionId is required")
	}
	s, err := h.rpc.Create(ctx, p.SessionID, rpc.Opts{Cwd: p.Cwd})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventRPCCreated).
		Set("session", s.Info()).
		WithID(in.ID), nil
}

func (h *handlers) handleRPCPrompt(ctx context.Context, in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.RPCPromptParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if p.SessionID == "" || strings.TrimSpace(p.Message) == "" {
		return nil, fmt.Errorf("sessionId and message are required")
	}
	if err := h.rpc.Prompt(ctx, p.SessionID, p.Message); err != nil {
		return nil, err
	}
	return protocol.OK(in.ID, in.Type), nil
}

func (h *handlers) handleTeamsCreate(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.TeamsCreateParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}

	members := make([]teams.Member, 0, len(p.Members))
	for _, m := range p.Members {
		name, _ := m["name"].(string)
		mType, _ := m["type"].(string)
		model, _ := m["model"].(string)
		members = append(members, teams.Member{Name: name, Type: mType, Model: model})
	}

	var cfg *teams.Config
	var err error
	if p.Preset != "" {
		cfg, err = h.teams.CreateTeamFromPreset(p.Preset, p.Name, members)
	} else {
		cfg, err = h.teams.CreateTeam(p.Name, members)
	}
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventTeamsCreated).
		Set("config", cfg).
		WithID(in.ID), nil
}

func (h *handlers) handleTeamsSpawn(ctx context.Context, in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.TeamsSpawnParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	pid, err := h.teams.SpawnTeam(ctx, p.Name, p.InitialPrompt, teams.SpawnOpts{
		Mode: p.Mode,
		Cwd:  p.Cwd,
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventTeamsSpawned).
		Set("team", p.Name).
		Set("pid", pid).
		WithID(in.ID), nil
}

func (h *handlers) handleTeamsTaskUpdate(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.TeamsTaskUpdateParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	var task teams.Task
	var err error
	if p.TaskID == "" {
		task, err = h.teams.CreateTask(p.Name, p.Task)
	} else {
		task, err = h.teams.UpdateTask(p.Name, p.TaskID, p.Task)
	}
	if err != nil {
		return nil, err
	}
	frame := protocol.New(protocol.EventTeamsTask).
		Set("team", p.Name).
		WithID(in.ID)
	if task != nil {
		frame.Set("task", task)
	} else {
		frame.Set("task", nil)
	}
	return frame, nil
}

func (h *handlers) handleTeamsMessage(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.TeamsMessageParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	msg, err := h.teams.SendMessage(p.Name, teams.Message{
		Type:    p.Type,
		From:    p.From,
		To:      p.To,
		Content: p.Content,
		Summary: p.Summary,
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventTeamsMessage).
		Set("team", p.Name).
		Set("message", msg).
		WithID(in.ID), nil
}

func (h *handlers) handleTeamsBroadcast(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.TeamsBroadcastParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	sent, err := h.teams.Broadcast(p.Name, p.From, p.Content, p.Summary)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventTeamsMessage).
		Set("team", p.Name).
		Set("messages", sent).
		WithID(in.ID), nil
}

func (h *handlers) handleThreadLaunch(ctx context.Context, in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.ThreadLaunchParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}

	var spec threads.Spec
	if p.Preset != "" {
		preset, err := threads.Preset(p.Preset, p.Target)
		if err != nil {
			return nil, err
		}
		spec = preset
	} else {
		spec = threads.Spec{
			Type:   p.ThreadType,
			Task:   p.Task,
			Agent:  p.Agent,
			Agents: p.Agents,
		}
		for _, step := range p.Steps {
			spec.Steps = append(spec.Steps, threads.Step{
				Agent:  step.Agent,
				Task:   step.Task,
				Output: step.Output,
				Reads:  step.Reads,
				Model:  step.Model,
			})
		}
	}
	spec.Cwd = p.Cwd
	spec.SkipClarify = p.SkipClarify
	spec.Async = p.Async

	run, err := h.threads.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventThreadLaunched).
		Set("thread", run.Snapshot()).
		WithID(in.ID), nil
}

func (h *handlers) handleThreadSteer(ctx context.Context, in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.ThreadSteerParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	if err := h.threads.Steer(ctx, p.ThreadID, p.Message); err != nil {
		return nil, err
	}
	return protocol.OK(in.ID, in.Type), nil
}

func (h *handlers) handleThreadPreset(in *protocol.Inbound) (protocol.Frame, error) {
	var p protocol.ThreadPresetParams
	if err := in.Bind(&p); err != nil {
		return nil, err
	}
	spec, err := threads.Preset(p.Preset, p.Target)
	if err != nil {
		return nil, err
	}
	command, err := threads.Compile(spec)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.EventThreadPresetPreview).
		Set("preset", p.Preset).
		Set("target", p.Target).
		Set("spec", spec).
		Set("command", command).
		Set("presets", threads.PresetNames()).
		WithID(in.ID), nil
}

// agentList renders the registry with per-agent health.
func (h *handlers) agentList(ctx context.Context) []map[string]interface{} {
	health := h.registry.CheckHealth(ctx)
	list := h.registry.List()
	out := make([]map[string]interface{}, 0, len(list))
	for _, w := range list {
		out = append(out, map[string]interface{}{
			"id":           w.ID(),
			"name":         w.Name(),
			"capabilities": w.Capabilities(),
			"healthy":      health[w.ID()],
		})
	}
	return out
}
