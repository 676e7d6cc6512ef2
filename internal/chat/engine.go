// Package chat orchestrates the retrieval-augmented answer loop: retrieve
// reference chunks for the user's message, prompt the model, run requested
// tool calls through the registry, and persist every step of the exchange.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/document"
	"github.com/carebot/carebot/internal/log"
)

// ErrToolLoopExceeded indicates the model kept requesting tools past the
// configured round cap. The engine handles it by answering with the degraded
// fallback; it never escapes Send.
var ErrToolLoopExceeded = errors.New("tool call rounds exceeded")

// ConversationStore is the slice of the conversation store the engine needs.
type ConversationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	Append(ctx context.Context, conversationID uuid.UUID, role conversation.Role, content string, toolCall *conversation.ToolCallRecord, toolResult json.RawMessage) (*conversation.Message, error)
	AttachToolResult(ctx context.Context, conversationID, messageID uuid.UUID, result json.RawMessage) (*conversation.Message, error)
}

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]document.Retrieved, error)
}

// Dispatcher advertises and executes tools.
type Dispatcher interface {
	Defs() []ai.ToolDef
	Dispatch(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Config bounds and flavors the answer loop.
type Config struct {
	// RetrievalK is how many chunks to retrieve per user message.
	RetrievalK int

	// MaxToolRounds caps consecutive model turns that request tools before
	// the engine falls back to the degraded answer.
	MaxToolRounds int

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// Disclaimer overrides DefaultDisclaimer when non-empty.
	Disclaimer string
}

// Result is the outcome of processing one user message.
type Result struct {
	// Message is the final assistant message persisted for this exchange.
	Message *conversation.Message

	// ToolCalls lists the tool invocations executed while producing the
	// reply, in order.
	ToolCalls []conversation.ToolCallRecord

	// Degraded is true when the tool round cap was exceeded and Message
	// carries the fallback text instead of a model answer.
	Degraded bool
}

// Engine runs the retrieval-augmented generation loop.
type Engine struct {
	conversations ConversationStore
	retriever     Retriever
	generator     ai.Generator
	tools         Dispatcher
	cfg           Config
	logger        log.Logger
}

// NewEngine wires the loop's collaborators. Zero config fields fall back to
// defaults (k=5, 3 rounds, built-in prompt and disclaimer).
func NewEngine(conversations ConversationStore, retriever Retriever, generator ai.Generator, tools Dispatcher, cfg Config, logger log.Logger) *Engine {
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 5
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 3
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Disclaimer == "" {
		cfg.Disclaimer = DefaultDisclaimer
	}
	return &Engine{
		conversations: conversations,
		retriever:     retriever,
		generator:     generator,
		tools:         tools,
		cfg:           cfg,
		logger:        logger,
	}
}

// Send processes one user message end to end:
//
//  1. Load the conversation history (NotFound if the conversation is gone).
//  2. Persist the user message.
//  3. Retrieve the chunks nearest the message text.
//  4. Call the model with the system prompt, history, and tool definitions.
//  5. If the model requests tools: persist the assistant tool-call message
//     (awaiting), dispatch, attach the result, persist the tool message, and
//     re-invoke the model — up to MaxToolRounds rounds.
//  6. Persist and return the final assistant reply. Past the round cap the
//     reply is the degraded fallback and Result.Degraded is set.
//
// A provider failure — from the embedding step inside retrieval or from the
// model itself — returns ErrProviderUnavailable with the user message kept,
// so a retry re-sends against the stored history. Non-provider retrieval
// faults (index unavailable, bad stored vectors) degrade to an answer
// without context rather than failing the request.
func (e *Engine) Send(ctx context.Context, conversationID uuid.UUID, text string) (*Result, error) {
	conv, err := e.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg, err := e.conversations.Append(ctx, conversationID, conversation.RoleUser, text, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	chunks, err := e.retriever.Retrieve(ctx, text, e.cfg.RetrievalK)
	if err != nil {
		if errors.Is(err, ai.ErrProviderUnavailable) {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
		e.logger.Warn("retrieval failed, answering without context",
			"conversation_id", conversationID, "error", err)
		chunks = nil
	}

	history := toPromptHistory(conv.Messages)
	history = append(history, ai.Message{Role: ai.RoleUser, Content: userMsg.Content})

	return e.generate(ctx, conversationID, buildSystem(e.cfg.SystemPrompt, chunks), history)
}

// generate runs the model/tool loop over the prompt history and persists the
// exchange as it unfolds.
func (e *Engine) generate(ctx context.Context, conversationID uuid.UUID, system string, history []ai.Message) (*Result, error) {
	result := &Result{}

	for round := 0; ; round++ {
		reply, err := e.generator.Generate(ctx, &ai.GenerateRequest{
			System:   system,
			Messages: history,
			Tools:    e.tools.Defs(),
		})
		if err != nil {
			return nil, err
		}

		if len(reply.ToolCalls) == 0 {
			msg, err := e.conversations.Append(ctx, conversationID, conversation.RoleAssistant, e.withDisclaimer(reply.Text), nil, nil)
			if err != nil {
				return nil, fmt.Errorf("persist assistant message: %w", err)
			}
			result.Message = msg
			return result, nil
		}

		if round >= e.cfg.MaxToolRounds {
			e.logger.Warn("tool round cap exceeded, returning degraded answer",
				"conversation_id", conversationID,
				"rounds", round,
				"error", ErrToolLoopExceeded,
			)
			fallback := e.withDisclaimer("I wasn't able to finish looking that up within the allowed number of tool steps. " +
				"Based on what I found so far I can't give a complete answer.")
			msg, err := e.conversations.Append(ctx, conversationID, conversation.RoleAssistant, fallback, nil, nil)
			if err != nil {
				return nil, fmt.Errorf("persist degraded message: %w", err)
			}
			result.Message = msg
			result.Degraded = true
			return result, nil
		}

		for _, call := range reply.ToolCalls {
			toolMsg, err := e.runToolCall(ctx, conversationID, reply.Text, call)
			if err != nil {
				return nil, err
			}

			record := *toolMsg.ToolCall
			result.ToolCalls = append(result.ToolCalls, record)

			history = append(history,
				ai.Message{
					Role:      ai.RoleAssistant,
					Content:   reply.Text,
					ToolCalls: []ai.ToolCall{{ID: record.ID, Name: record.Name, Arguments: record.Arguments}},
				},
				ai.Message{
					Role:       ai.RoleTool,
					Content:    toolMsg.Content,
					ToolCallID: record.ID,
					ToolName:   record.Name,
				},
			)
		}
	}
}

// withDisclaimer appends the configured disclaimer so every assistant-facing
// answer carries it. Skipped when the model already included the text.
func (e *Engine) withDisclaimer(text string) string {
	if e.cfg.Disclaimer == "" || strings.Contains(text, e.cfg.Disclaimer) {
		return text
	}
	return text + "\n\n" + e.cfg.Disclaimer
}

// runToolCall persists the awaiting assistant message, dispatches the tool,
// attaches the result, and persists the tool message. On dispatch failure
// the awaiting message is left visible so the caller can post the result
// later; the error is returned classified (UnknownTool, SchemaViolation,
// ExecutionFailed).
func (e *Engine) runToolCall(ctx context.Context, conversationID uuid.UUID, assistantText string, call ai.ToolCall) (*conversation.Message, error) {
	record := &conversation.ToolCallRecord{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	awaiting, err := e.conversations.Append(ctx, conversationID, conversation.RoleAssistant, assistantText, record, nil)
	if err != nil {
		return nil, fmt.Errorf("persist tool call message: %w", err)
	}

	output, err := e.tools.Dispatch(ctx, call.Name, call.Arguments)
	if err != nil {
		e.logger.Warn("tool dispatch failed, leaving call awaiting result",
			"conversation_id", conversationID,
			"message_id", awaiting.ID,
			"tool", call.Name,
			"error", err,
		)
		return nil, err
	}

	if _, err := e.conversations.AttachToolResult(ctx, conversationID, awaiting.ID, output); err != nil {
		return nil, fmt.Errorf("attach tool result: %w", err)
	}

	toolMsg, err := e.conversations.Append(ctx, conversationID, conversation.RoleTool, string(output), record, output)
	if err != nil {
		return nil, fmt.Errorf("persist tool message: %w", err)
	}
	e.logger.Debug("tool round completed", "conversation_id", conversationID, "tool", call.Name)
	return toolMsg, nil
}

// Resume attaches an externally supplied tool result to an awaiting
// assistant message and continues the loop from there. It is the retry path
// for tool rounds whose dispatch failed.
//
// Returns conversation.ErrMessageNotFound / ErrNotAwaitingResult from the
// store unchanged so callers can map them.
func (e *Engine) Resume(ctx context.Context, conversationID, messageID uuid.UUID, result json.RawMessage) (*Result, error) {
	awaiting, err := e.conversations.AttachToolResult(ctx, conversationID, messageID, result)
	if err != nil {
		return nil, err
	}

	if _, err := e.conversations.Append(ctx, conversationID, conversation.RoleTool, string(result), awaiting.ToolCall, result); err != nil {
		return nil, fmt.Errorf("persist tool message: %w", err)
	}

	conv, err := e.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// No retrieval here: the context that produced the tool call is already
	// in the history.
	return e.generate(ctx, conversationID, e.cfg.SystemPrompt, toPromptHistory(conv.Messages))
}
