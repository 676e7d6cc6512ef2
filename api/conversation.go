package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/log"
)

// Pagination and validation bounds.
const (
	MaxUserIDLength  = 100
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000
)

// ConversationHandler handles conversation CRUD endpoints.
type ConversationHandler struct {
	store  *conversation.Store
	logger log.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(store *conversation.Store, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /conversations", h.create)
	mux.HandleFunc("GET /users/{userId}/conversations", h.list)
	mux.HandleFunc("GET /conversations/{id}", h.get)
	mux.HandleFunc("DELETE /conversations/{id}", h.delete)
}

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	UserID string `json:"user_id"`
}

func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}
	if len(req.UserID) > MaxUserIDLength {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id too long (max 100 characters)")
		return
	}

	conv, err := h.store.Create(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to create conversation", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// list returns a user's conversations, most recently updated first.
// Query parameters: limit, offset.
func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if len(userID) > MaxUserIDLength {
		writeError(w, http.StatusBadRequest, "bad_request", "user id too long (max 100 characters)")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	convs, err := h.store.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"total":         len(convs),
		"limit":         limit,
		"offset":        offset,
	})
}

func (h *ConversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseUUID extracts and parses a UUID path value, writing a 400 on failure.
func parseUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
