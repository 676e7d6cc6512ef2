package chat

import (
	"fmt"
	"strings"

	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/document"
)

// DefaultSystemPrompt is the assistant persona used when configuration does
// not override it.
const DefaultSystemPrompt = `You are a helpful healthcare assistant. Answer questions about medications, symptoms, and appointments using the provided reference context and the available tools.

Guidelines:
- Ground answers in the reference context when it is relevant; do not invent medical facts.
- Use the available tools to look up medication details, check symptoms, or schedule appointments when the question calls for it.
- Be clear and compassionate. Use plain language.
- You are not a doctor. Always remind the user to consult a healthcare professional for medical decisions.`

// DefaultDisclaimer is appended to answers the assistant could not complete
// normally.
const DefaultDisclaimer = "This information is general guidance, not medical advice. Please consult a healthcare professional."

// buildSystem combines the persona prompt with the retrieved reference
// chunks into the system instruction for the provider.
func buildSystem(base string, chunks []document.Retrieved) string {
	if len(chunks) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nReference context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, c.Content)
	}
	return b.String()
}

// toPromptHistory converts stored messages into the provider-neutral form.
// Assistant tool calls and their results are replayed so the model sees
// completed tool rounds; an awaiting call with no result is sent as-is and
// the model decides how to proceed.
func toPromptHistory(messages []*conversation.Message) []ai.Message {
	history := make([]ai.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleUser:
			history = append(history, ai.Message{Role: ai.RoleUser, Content: m.Content})
		case conversation.RoleAssistant:
			msg := ai.Message{Role: ai.RoleAssistant, Content: m.Content}
			if m.ToolCall != nil {
				msg.ToolCalls = []ai.ToolCall{{
					ID:        m.ToolCall.ID,
					Name:      m.ToolCall.Name,
					Arguments: m.ToolCall.Arguments,
				}}
			}
			history = append(history, msg)
		case conversation.RoleTool:
			msg := ai.Message{Role: ai.RoleTool, Content: m.Content}
			if m.ToolCall != nil {
				msg.ToolCallID = m.ToolCall.ID
				msg.ToolName = m.ToolCall.Name
			}
			history = append(history, msg)
		}
	}
	return history
}
