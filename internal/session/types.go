package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session modes. Plan mode prepends a planning instruction to the system
// prompt; execute mode runs prompts as-is.
const (
	ModeExecute = "execute"
	ModePlan    = "plan"
)

// ChatMessage is one entry of the conversation history.
type ChatMessage struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	AgentUsed  string    `json:"agentUsed,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func newMessage(role, content, agentUsed string, durationMs int64) ChatMessage {
	return ChatMessage{
		ID:         uuid.New().String(),
		Role:       role,
		Content:    content,
		AgentUsed:  agentUsed,
		DurationMs: durationMs,
		Timestamp:  time.Now().UTC(),
	}
}

// TurnResult is delivered to a turn's waiter once the turn settles.
type TurnResult struct {
	Message *ChatMessage
	Result  *wrappers.Result
	Err     error
}

// queuedMessage is a user message waiting for the in-flight turn to finish.
type queuedMessage struct {
	text string
	done chan TurnResult
}
