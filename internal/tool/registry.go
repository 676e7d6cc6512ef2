package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/log"
)

// Registry holds the available tools and dispatches calls to them.
// Registration happens at startup; dispatch is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	logger log.Logger
}

type entry struct {
	tool     *Tool
	resolved *jsonschema.Resolved
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{tools: make(map[string]*entry), logger: logger}
}

// Register adds a tool, resolving its schema for validation. Registering a
// name twice or a tool with a broken schema is a programming error.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %q has no execute func", t.Name)
	}

	resolved, err := t.Schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema for %q: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = &entry{tool: t, resolved: resolved}
	r.logger.Debug("tool registered", "tool", t.Name)
	return nil
}

// Defs returns the tool definitions to advertise to the model, sorted by
// name for stable prompts.
func (r *Registry) Defs() []ai.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDef, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, ai.ToolDef{
			Name:        e.tool.Name,
			Description: e.tool.Description,
			Parameters:  e.tool.Schema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch validates the arguments against the tool's schema and executes
// it. Failures wrap ErrUnknownTool, ErrSchemaViolation, or
// ErrExecutionFailed so callers can classify them with errors.Is.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	var parsed any
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, err)
	}
	if err := e.resolved.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, err)
	}

	result, err := e.tool.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrExecutionFailed, name, err)
	}

	r.logger.Debug("tool dispatched", "tool", name)
	return result, nil
}
