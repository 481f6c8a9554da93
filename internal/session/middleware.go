package session

import "strings"

// Verdict kinds returned by middleware.
const (
	VerdictPass      = "pass"
	VerdictTransform = "transform"
	VerdictBlock     = "block"
	VerdictRoute     = "route"
)

// Verdict is a middleware's decision for the current prompt.
type Verdict struct {
	Kind    string
	Prompt  string // replacement prompt for transform/route (empty keeps the current one)
	Reason  string // block reason
	AgentID string // forced wrapper for route
}

// Pass continues the chain with the prompt unchanged.
func Pass() Verdict { return Verdict{Kind: VerdictPass} }

// Transform continues the chain with a replaced prompt.
func Transform(prompt string) Verdict {
	return Verdict{Kind: VerdictTransform, Prompt: prompt}
}

// Block aborts the turn with a reason.
func Block(reason string) Verdict {
	return Verdict{Kind: VerdictBlock, Reason: reason}
}

// Route stops the chain and forces the named wrapper. A non-empty prompt
// also replaces the current one.
func Route(agentID, prompt string) Verdict {
	return Verdict{Kind: VerdictRoute, AgentID: agentID, Prompt: prompt}
}

// MiddlewareContext carries read-only turn state into middleware.
type MiddlewareContext struct {
	SessionID  string
	History    []ChatMessage
	Capability string
}

// Middleware inspects a prompt before execution and returns a verdict.
type Middleware func(mctx MiddlewareContext, prompt string) Verdict

// AgentRouteMiddleware recognises an "@<agentId> <rest>" prefix and routes
// the remainder of the prompt to the named wrapper. Prompts without the
// prefix, or with nothing after the agent id, pass through untouched.
func AgentRouteMiddleware() Middleware {
	return func(mctx MiddlewareContext, prompt string) Verdict {
		if !strings.HasPrefix(prompt, "@") {
			return Pass()
		}
		rest := strings.TrimPrefix(prompt, "@")
		idx := strings.IndexAny(rest, " \t")
		if idx <= 0 {
			return Pass()
		}
		agentID := rest[:idx]
		remainder := strings.TrimSpace(rest[idx:])
		if remainder == "" {
			return Pass()
		}
		return Route(agentID, remainder)
	}
}
