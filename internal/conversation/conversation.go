// Package conversation persists chat conversations and their ordered
// message history.
//
// Sequence numbers are assigned inside a transaction holding the
// conversation's row lock, so concurrent appends to the same conversation
// serialize and the (conversation_id, sequence_number) ordering has no gaps
// or duplicates.
package conversation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a stored message.
type Role string

// Stored message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Conversation is one chat thread owned by a user.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Messages is populated by Get, ordered by sequence number.
	Messages []*Message `json:"messages,omitempty"`
}

// ToolCallRecord is the persisted form of a tool invocation requested by the
// assistant.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry in a conversation's history.
//
// An assistant message with a ToolCall and no ToolResult is awaiting its
// tool result; the reply it belongs to is not complete until the result is
// attached and the follow-up assistant message lands.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	SequenceNumber int             `json:"sequence_number"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	ToolCall       *ToolCallRecord `json:"tool_call,omitempty"`
	ToolResult     json.RawMessage `json:"tool_result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AwaitingToolResult reports whether the message is an assistant tool call
// that has not received its result yet.
func (m *Message) AwaitingToolResult() bool {
	return m.Role == RoleAssistant && m.ToolCall != nil && m.ToolResult == nil
}

// Store errors callers map to HTTP statuses.
var (
	// ErrNotFound indicates the conversation or message does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates the message does not exist in the
	// conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotAwaitingResult indicates a tool result was posted to a message
	// that is not an assistant tool call awaiting one.
	ErrNotAwaitingResult = errors.New("message is not awaiting a tool result")
)
