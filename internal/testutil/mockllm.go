package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/carebot/carebot/internal/ai"
)

// MockLLM provides deterministic chat completions for testing.
// It matches the last user message against registered patterns and returns
// the corresponding reply; unmatched messages get the fallback text.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []MockCall
	errs     []error
}

type mockRule struct {
	pattern string // substring match in last user message, lowercase
	reply   ai.Reply
	once    bool
	used    bool
}

// MockCall records one call to the mock model.
type MockCall struct {
	UserMessage string
	ToolResults int // number of tool messages in the request history
	Reply       ai.Reply
}

// NewMockLLM creates a mock model with the given fallback reply text.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern → text reply. Patterns are checked in
// registration order; first unconsumed match wins.
func (m *MockLLM) AddResponse(pattern, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		reply:   ai.Reply{Text: text},
	})
}

// AddToolResponse registers a pattern that triggers tool calls. The rule
// matches once; subsequent calls with the same user message fall through to
// later rules, which lets a test script "call tool, then answer".
func (m *MockLLM) AddToolResponse(pattern string, calls ...ai.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		reply:   ai.Reply{ToolCalls: calls},
		once:    true,
	})
}

// AddRepeatingToolResponse registers a pattern that requests the tool call
// on every matching turn, for exercising round caps.
func (m *MockLLM) AddRepeatingToolResponse(pattern string, calls ...ai.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		reply:   ai.Reply{ToolCalls: calls},
	})
}

// FailWith queues errors returned by subsequent Generate calls before any
// pattern matching happens.
func (m *MockLLM) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Generate implements ai.Generator.
func (m *MockLLM) Generate(_ context.Context, req *ai.GenerateRequest) (*ai.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	var userText string
	toolResults := 0
	for _, msg := range req.Messages {
		if msg.Role == ai.RoleTool {
			toolResults++
		}
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Content
			break
		}
	}

	reply := ai.Reply{Text: m.fallback}
	lower := strings.ToLower(userText)
	for i := range m.rules {
		r := &m.rules[i]
		if r.once && r.used {
			continue
		}
		if strings.Contains(lower, r.pattern) {
			reply = r.reply
			r.used = true
			break
		}
	}

	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		ToolResults: toolResults,
		Reply:       reply,
	})
	return &reply, nil
}
