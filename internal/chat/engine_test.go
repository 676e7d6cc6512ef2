package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/document"
	"github.com/carebot/carebot/internal/log"
	"github.com/carebot/carebot/internal/testutil"
	"github.com/carebot/carebot/internal/tool"
)

// memStore is an in-memory ConversationStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	convs   map[uuid.UUID][]*conversation.Message
	nextSeq map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		convs:   make(map[uuid.UUID][]*conversation.Message),
		nextSeq: make(map[uuid.UUID]int),
	}
}

func (m *memStore) create() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.convs[id] = nil
	m.nextSeq[id] = 1
	return id
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.convs[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	cp := make([]*conversation.Message, len(msgs))
	copy(cp, msgs)
	return &conversation.Conversation{ID: id, MessageCount: len(cp), Messages: cp}, nil
}

func (m *memStore) Append(_ context.Context, id uuid.UUID, role conversation.Role, content string, toolCall *conversation.ToolCallRecord, toolResult json.RawMessage) (*conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; !ok {
		return nil, conversation.ErrNotFound
	}
	msg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: id,
		SequenceNumber: m.nextSeq[id],
		Role:           role,
		Content:        content,
		ToolCall:       toolCall,
		ToolResult:     toolResult,
	}
	m.nextSeq[id]++
	m.convs[id] = append(m.convs[id], msg)
	return msg, nil
}

func (m *memStore) AttachToolResult(_ context.Context, convID, msgID uuid.UUID, result json.RawMessage) (*conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.convs[convID]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	for _, msg := range msgs {
		if msg.ID == msgID {
			if !msg.AwaitingToolResult() {
				return nil, conversation.ErrNotAwaitingResult
			}
			msg.ToolResult = result
			return msg, nil
		}
	}
	return nil, conversation.ErrMessageNotFound
}

func (m *memStore) messages(id uuid.UUID) []*conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*conversation.Message(nil), m.convs[id]...)
}

// fixedRetriever returns the same chunks for every query.
type fixedRetriever struct {
	chunks []document.Retrieved
	err    error
}

func (r *fixedRetriever) Retrieve(context.Context, string, int) ([]document.Retrieved, error) {
	return r.chunks, r.err
}

// recordingGenerator captures every request passed to the inner generator.
type recordingGenerator struct {
	inner    ai.Generator
	requests []*ai.GenerateRequest
}

func (g *recordingGenerator) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.Reply, error) {
	g.requests = append(g.requests, req)
	return g.inner.Generate(ctx, req)
}

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry(log.NewNop())
	require.NoError(t, tool.RegisterBuiltins(r))
	return r
}

func TestEngine_PlainAnswer(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("I can help with that.")
	rec := &recordingGenerator{inner: llm}
	retriever := &fixedRetriever{chunks: []document.Retrieved{
		{Chunk: document.Chunk{Content: "Ibuprofen is an NSAID."}},
	}}
	engine := NewEngine(store, retriever, rec, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	result, err := engine.Send(context.Background(), convID, "hello")
	require.NoError(t, err)

	assert.Contains(t, result.Message.Content, "I can help with that.")
	assert.Contains(t, result.Message.Content, DefaultDisclaimer)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.ToolCalls)

	msgs := store.messages(convID)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)

	// Retrieved chunks land in the system prompt, tools are advertised.
	require.Len(t, rec.requests, 1)
	assert.Contains(t, rec.requests[0].System, "Ibuprofen is an NSAID.")
	assert.Len(t, rec.requests[0].Tools, 3)
}

func TestEngine_ToolCallRound(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("fallback")
	llm.AddToolResponse("ibuprofen", ai.ToolCall{
		Name:      "medication_info",
		Arguments: json.RawMessage(`{"name":"ibuprofen"}`),
	})
	llm.AddResponse("ibuprofen", "Ibuprofen's common side effects include stomach upset and heartburn.")
	engine := NewEngine(store, &fixedRetriever{}, llm, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	result, err := engine.Send(context.Background(), convID, "What are the side effects of ibuprofen?")
	require.NoError(t, err)

	assert.Contains(t, result.Message.Content, "stomach upset")
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "medication_info", result.ToolCalls[0].Name)
	assert.False(t, result.Degraded)

	// user, assistant(tool call), tool, assistant(final)
	msgs := store.messages(convID)
	require.Len(t, msgs, 4)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	require.NotNil(t, msgs[1].ToolCall)
	assert.False(t, msgs[1].AwaitingToolResult(), "dispatched call must carry its result")
	assert.Equal(t, conversation.RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "side_effects")
	assert.Equal(t, conversation.RoleAssistant, msgs[3].Role)

	// Sequence numbers stay strictly increasing.
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].SequenceNumber, msgs[i-1].SequenceNumber)
	}
}

func TestEngine_RoundCapDegrades(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("never reached")
	llm.AddRepeatingToolResponse("symptoms", ai.ToolCall{
		Name:      "symptom_check",
		Arguments: json.RawMessage(`{"symptoms":["headache"]}`),
	})
	engine := NewEngine(store, &fixedRetriever{}, llm, newRegistry(t), Config{MaxToolRounds: 2}, log.NewNop())

	convID := store.create()
	result, err := engine.Send(context.Background(), convID, "check my symptoms please")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, conversation.RoleAssistant, result.Message.Role)
	assert.Contains(t, result.Message.Content, DefaultDisclaimer)
	assert.Len(t, result.ToolCalls, 2)

	// user + 2×(assistant tool call + tool result) + degraded assistant
	msgs := store.messages(convID)
	assert.Len(t, msgs, 6)
}

func TestEngine_ProviderFailureKeepsUserMessage(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("unused")
	llm.FailWith(ai.ErrProviderUnavailable)
	engine := NewEngine(store, &fixedRetriever{}, llm, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	_, err := engine.Send(context.Background(), convID, "hello")
	require.ErrorIs(t, err, ai.ErrProviderUnavailable)

	msgs := store.messages(convID)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
}

func TestEngine_RetrievalFailureDegradesToNoContext(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("answered without context")
	rec := &recordingGenerator{inner: llm}
	engine := NewEngine(store, &fixedRetriever{err: errors.New("index offline")}, rec, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	result, err := engine.Send(context.Background(), convID, "hello")
	require.NoError(t, err)
	assert.Contains(t, result.Message.Content, "answered without context")

	require.Len(t, rec.requests, 1)
	assert.NotContains(t, rec.requests[0].System, "Reference context")
}

func TestEngine_EmbeddingProviderFailureKeepsUserMessage(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("unused")
	retriever := &fixedRetriever{err: fmt.Errorf("embed query: %w", ai.ErrProviderUnavailable)}
	engine := NewEngine(store, retriever, llm, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	_, err := engine.Send(context.Background(), convID, "hello")
	require.ErrorIs(t, err, ai.ErrProviderUnavailable)

	msgs := store.messages(convID)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
}

func TestEngine_UnknownToolLeavesAwaiting(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("unused")
	llm.AddToolResponse("records", ai.ToolCall{
		Name:      "lookup_patient_records",
		Arguments: json.RawMessage(`{}`),
	})
	engine := NewEngine(store, &fixedRetriever{}, llm, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	_, err := engine.Send(context.Background(), convID, "look up my records")
	require.ErrorIs(t, err, tool.ErrUnknownTool)

	msgs := store.messages(convID)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].AwaitingToolResult())
}

func TestEngine_ResumeFromToolResult(t *testing.T) {
	store := newMemStore()
	llm := testutil.NewMockLLM("Your records show no open issues.")
	llm.AddToolResponse("records", ai.ToolCall{
		Name:      "lookup_patient_records",
		Arguments: json.RawMessage(`{}`),
	})
	engine := NewEngine(store, &fixedRetriever{}, llm, newRegistry(t), Config{}, log.NewNop())

	convID := store.create()
	_, err := engine.Send(context.Background(), convID, "look up my records")
	require.ErrorIs(t, err, tool.ErrUnknownTool)

	msgs := store.messages(convID)
	awaiting := msgs[len(msgs)-1]
	require.True(t, awaiting.AwaitingToolResult())

	result, err := engine.Resume(context.Background(), convID, awaiting.ID, json.RawMessage(`{"records":"clean"}`))
	require.NoError(t, err)
	assert.Contains(t, result.Message.Content, "Your records show no open issues.")

	// The awaiting message now has its result and a tool message follows it.
	msgs = store.messages(convID)
	require.Len(t, msgs, 4)
	assert.False(t, msgs[1].AwaitingToolResult())
	assert.Equal(t, conversation.RoleTool, msgs[2].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[3].Role)

	// Resuming again conflicts.
	_, err = engine.Resume(context.Background(), convID, awaiting.ID, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, conversation.ErrNotAwaitingResult)
}

func TestEngine_MissingConversation(t *testing.T) {
	engine := NewEngine(newMemStore(), &fixedRetriever{}, testutil.NewMockLLM("x"), newRegistry(t), Config{}, log.NewNop())

	_, err := engine.Send(context.Background(), uuid.New(), "hello")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}
