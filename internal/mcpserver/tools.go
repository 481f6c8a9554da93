package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
)

func registerTools(s *server.MCPServer, cfg Config, deps Deps, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List all registered coding agents with their capabilities. Use this first to get agent IDs for run_agent."),
		),
		listAgentsHandler(deps, log),
	)

	s.AddTool(
		mcp.NewTool("agent_health",
			mcp.WithDescription("Probe every registered agent and report which ones are installed and responding."),
		),
		agentHealthHandler(deps, log),
	)

	s.AddTool(
		mcp.NewTool("run_agent",
			mcp.WithDescription(
				"Run a coding agent to completion with a single prompt and return its output. "+
					"When agent_id is omitted the best healthy agent for the capability is selected, "+
					"with automatic fallback if it fails.",
			),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The task prompt to send to the agent"),
			),
			mcp.WithString("agent_id",
				mcp.Description("Run this specific agent (optional; see list_agents)"),
			),
			mcp.WithString("capability",
				mcp.Description("Required capability, e.g. code, review, plan (optional)"),
			),
			mcp.WithNumber("timeout_ms",
				mcp.Description("Execution timeout in milliseconds (optional)"),
			),
		),
		runAgentHandler(cfg, deps, log),
	)

	s.AddTool(
		mcp.NewTool("chat_history",
			mcp.WithDescription("Return the gateway session's chat history, most recent last."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of messages to return (optional; 0 means all)"),
			),
		),
		chatHistoryHandler(deps, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 4))
}

func listAgentsHandler(deps Deps, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := deps.Registry.CheckHealth(ctx)

		agents := make([]map[string]interface{}, 0)
		for _, w := range deps.Registry.List() {
			agents = append(agents, map[string]interface{}{
				"id":           w.ID(),
				"name":         w.Name(),
				"binary":       w.Binary(),
				"capabilities": w.Capabilities(),
				"healthy":      health[w.ID()],
			})
		}

		formatted, _ := json.MarshalIndent(agents, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func agentHealthHandler(deps Deps, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := deps.Registry.CheckHealth(ctx)
		formatted, _ := json.MarshalIndent(health, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func runAgentHandler(cfg Config, deps Deps, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task := wrappers.Task{
			Prompt:     prompt,
			WorkDir:    cfg.WorkDir,
			Capability: req.GetString("capability", ""),
			TimeoutMs:  req.GetInt("timeout_ms", 0),
		}

		var result *wrappers.Result
		if agentID := req.GetString("agent_id", ""); agentID != "" {
			w, ok := deps.Registry.Get(agentID)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown agent: %s", agentID)), nil
			}
			result = w.Execute(ctx, task)
		} else {
			result = deps.Registry.Execute(ctx, task)
		}

		log.Debug("run_agent finished",
			zap.String("agent", result.AgentID),
			zap.String("status", string(result.Status)),
			zap.Int64("duration_ms", result.DurationMs))

		if !result.OK() {
			msg := result.Output
			if msg == "" {
				msg = result.Stderr
			}
			return mcp.NewToolResultError(fmt.Sprintf("agent %s failed (%s): %s", result.AgentID, result.Status, msg)), nil
		}
		return mcp.NewToolResultText(result.Output), nil
	}
}

func chatHistoryHandler(deps Deps, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		history := deps.Session.GetHistory()

		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(history) {
			history = history[len(history)-limit:]
		}

		formatted, _ := json.MarshalIndent(history, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}
