// Package ai wraps the external LLM and embedding providers behind small
// capability interfaces.
//
// Provider polymorphism: one implementation per provider (OpenAI, Gemini),
// selected by configuration at startup. Callers depend only on Generator and
// Embedder; the retry wrappers in retry.go add the bounded retry-with-backoff
// policy around any implementation.
package ai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role identifies the author of a chat message.
type Role string

// Message roles understood by both providers.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request from the model to invoke a tool.
type ToolCall struct {
	// ID is the provider-assigned call identifier. May be empty for
	// providers that do not issue one (Gemini); callers must then
	// correlate by Name.
	ID string `json:"id,omitempty"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Arguments is the raw JSON arguments payload.
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a single entry of the prompt history sent to the provider.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that requested tool invocations.
	ToolCalls []ToolCall

	// ToolCallID and ToolName are set on tool messages and reference the
	// call the result answers. Content then carries the JSON result payload.
	ToolCallID string
	ToolName   string
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// GenerateRequest is the provider-neutral chat completion request.
type GenerateRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDef
}

// Reply is the provider-neutral chat completion response: either plain text
// or one or more tool-call requests (in which case Text may be empty).
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Generator produces a chat completion from a message history and tool set.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Reply, error)
}

// Embedder converts texts to fixed-length embedding vectors, one per input,
// in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrProviderUnavailable indicates the external provider could not be
// reached or kept failing after the configured retries. Callers map it to
// HTTP 502.
var ErrProviderUnavailable = errors.New("provider unavailable")
