// Package tool provides the registry of callable tools the assistant may
// invoke, with JSON Schema validation of arguments before dispatch.
package tool

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// Func executes a tool call with validated arguments and returns the JSON
// result payload.
type Func func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool is a named capability the model may call.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Execute     Func
}

// Dispatch errors callers map to message states and HTTP statuses.
var (
	// ErrUnknownTool indicates the model asked for a tool that is not
	// registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrSchemaViolation indicates the arguments failed schema validation.
	ErrSchemaViolation = errors.New("tool arguments violate schema")

	// ErrExecutionFailed indicates the tool ran but returned an error.
	ErrExecutionFailed = errors.New("tool execution failed")
)
