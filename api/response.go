package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/document"
	"github.com/carebot/carebot/internal/tool"
)

// writeJSON writes a JSON response with the given status code.
// If encoding fails after WriteHeader the status is already sent; the error
// is only logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeDomainError maps domain sentinel errors to HTTP statuses:
//
//	not found                → 404
//	schema violation         → 400
//	not awaiting tool result → 409
//	provider failure         → 502
//	tool failure             → 500 (sanitized, internal detail stays in logs)
//	everything else          → 500
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, conversation.ErrMessageNotFound),
		errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, tool.ErrSchemaViolation):
		writeError(w, http.StatusBadRequest, "schema_violation", tool.ErrSchemaViolation.Error())
	case errors.Is(err, conversation.ErrNotAwaitingResult):
		writeError(w, http.StatusConflict, "not_awaiting_result", err.Error())
	case errors.Is(err, ai.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "provider_unavailable", err.Error())
	case errors.Is(err, tool.ErrUnknownTool),
		errors.Is(err, tool.ErrExecutionFailed):
		writeError(w, http.StatusInternalServerError, "tool_failed", "tool execution failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
