package api

import (
	"encoding/json"
	"net/http"

	"github.com/carebot/carebot/internal/chat"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/log"
)

// MaxMessageLength bounds the user message body.
const MaxMessageLength = 10000

// MessageHandler handles the chat endpoints: sending a user message and
// supplying pending tool results.
type MessageHandler struct {
	store  *conversation.Store
	engine *chat.Engine
	logger log.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(store *conversation.Store, engine *chat.Engine, logger log.Logger) *MessageHandler {
	return &MessageHandler{store: store, engine: engine, logger: logger}
}

// RegisterRoutes registers message routes on the given mux.
func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /conversations/{id}/messages", h.send)
	mux.HandleFunc("POST /messages/{id}/tool-results", h.toolResult)
}

// SendMessageRequest is the request body for sending a user message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessageResponse is the assistant's reply to a user message.
type SendMessageResponse struct {
	Message   *conversation.Message         `json:"message"`
	ToolCalls []conversation.ToolCallRecord `json:"tool_calls,omitempty"`
	Degraded  bool                          `json:"degraded,omitempty"`
}

// send runs the full answer loop for one user message and returns the final
// assistant message.
func (h *MessageHandler) send(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	if len(req.Text) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "bad_request", "text too long (max 10000 characters)")
		return
	}

	result, err := h.engine.Send(r.Context(), id, req.Text)
	if err != nil {
		h.logger.Error("failed to process message",
			"conversation_id", id, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		Message:   result.Message,
		ToolCalls: result.ToolCalls,
		Degraded:  result.Degraded,
	})
}

// ToolResultRequest is the request body for supplying a pending tool result.
type ToolResultRequest struct {
	Result json.RawMessage `json:"result"`
}

// toolResult attaches an externally supplied tool result to an awaiting
// assistant message and resumes the answer loop.
func (h *MessageHandler) toolResult(w http.ResponseWriter, r *http.Request) {
	messageID, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req ToolResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if len(req.Result) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "result is required")
		return
	}

	conversationID, err := h.store.ConversationOf(r.Context(), messageID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.engine.Resume(r.Context(), conversationID, messageID, req.Result)
	if err != nil {
		h.logger.Error("failed to resume from tool result",
			"message_id", messageID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		Message:   result.Message,
		ToolCalls: result.ToolCalls,
		Degraded:  result.Degraded,
	})
}
