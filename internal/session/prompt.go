package session

import (
	"strings"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
)

// planInstruction is prepended to the system prompt in plan mode so the
// wrapper describes steps instead of editing files.
const planInstruction = "You are in planning mode. Do not modify any files. " +
	"Instead, produce a concrete step-by-step plan for the request, listing " +
	"the files you would touch and the changes you would make."

// buildPrompt assembles the text handed to a wrapper: an optional system
// prompt, a window of recent conversation, then the user's final prompt.
// Context messages come from history as it stood before this turn.
func buildPrompt(systemPrompt string, context []ChatMessage, finalPrompt string) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	if len(context) > 0 {
		start := len(context) - constants.HistoryContextMessages
		if start < 0 {
			start = 0
		}
		b.WriteString("Recent conversation:\n")
		for _, msg := range context[start:] {
			b.WriteString(rolePrefix(msg.Role))
			b.WriteString(truncate(msg.Content, constants.HistoryContextMaxChars))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(finalPrompt)
	return b.String()
}

func rolePrefix(role string) string {
	if role == RoleAssistant {
		return "Assistant: "
	}
	return "User: "
}

// truncate clips s to max bytes with an ellipsis marker. Context messages
// and queue previews both go through here.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
