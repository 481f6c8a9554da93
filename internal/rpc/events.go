package rpc

import (
	"encoding/json"

	"github.com/coder/acp-go-sdk"
)

// Event kinds surfaced to subscribers. The vocabulary is protocol-agnostic;
// the ACP notification union collapses into these.
const (
	EventAssistantMessage = "assistant_message"
	EventThought          = "thought"
	EventToolCall         = "tool_call"
	EventToolCallUpdate   = "tool_call_update"
	EventPlan             = "plan"
)

// AgentEvent is one normalized update from a long-lived agent session.
type AgentEvent struct {
	Type      string          `json:"type"`
	TextDelta string          `json:"textDelta,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// normalizeNotification converts an ACP session notification into an
// AgentEvent. Updates with no usable payload come back nil and are dropped.
func normalizeNotification(n acp.SessionNotification) *AgentEvent {
	raw, _ := json.Marshal(n)
	u := n.Update

	switch {
	case u.AgentMessageChunk != nil:
		if u.AgentMessageChunk.Content.Text != nil {
			return &AgentEvent{
				Type:      EventAssistantMessage,
				TextDelta: u.AgentMessageChunk.Content.Text.Text,
				Raw:       raw,
			}
		}

	case u.AgentThoughtChunk != nil:
		if u.AgentThoughtChunk.Content.Text != nil {
			return &AgentEvent{
				Type:      EventThought,
				TextDelta: u.AgentThoughtChunk.Content.Text.Text,
				Raw:       raw,
			}
		}

	case u.ToolCall != nil:
		name := string(u.ToolCall.Kind)
		if name == "" {
			name = u.ToolCall.Title
		}
		return &AgentEvent{
			Type:     EventToolCall,
			ToolName: name,
			Raw:      raw,
		}

	case u.ToolCallUpdate != nil:
		return &AgentEvent{
			Type: EventToolCallUpdate,
			Raw:  raw,
		}

	case u.Plan != nil:
		return &AgentEvent{
			Type: EventPlan,
			Raw:  raw,
		}
	}
	return nil
}
