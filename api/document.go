package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carebot/carebot/internal/document"
	"github.com/carebot/carebot/internal/log"
)

// Document validation bounds.
const (
	MaxDocumentTitleLength   = 200
	MaxDocumentContentLength = 1 << 20 // 1 MiB
)

// DocumentHandler handles knowledge-base document endpoints.
type DocumentHandler struct {
	documents *document.Service
	logger    log.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(documents *document.Service, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /documents", h.create)
	mux.HandleFunc("GET /documents", h.list)
	mux.HandleFunc("GET /documents/{id}", h.get)
	mux.HandleFunc("PUT /documents/{id}", h.update)
	mux.HandleFunc("DELETE /documents/{id}", h.delete)
}

// DocumentRequest is the request body for creating or replacing a document.
type DocumentRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (h *DocumentHandler) decode(w http.ResponseWriter, r *http.Request) (*DocumentRequest, bool) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return nil, false
	}
	if req.Title == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title and text are required")
		return nil, false
	}
	if len(req.Title) > MaxDocumentTitleLength {
		writeError(w, http.StatusBadRequest, "bad_request", "title too long (max 200 characters)")
		return nil, false
	}
	if len(req.Text) > MaxDocumentContentLength {
		writeError(w, http.StatusBadRequest, "bad_request", "text too large (max 1MiB)")
		return nil, false
	}
	return &req, true
}

// create ingests a document: chunks, embeds, and stores it.
func (h *DocumentHandler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	doc, err := h.documents.Ingest(r.Context(), req.Title, req.Text)
	if err != nil {
		h.logger.Error("failed to ingest document", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	docs, err := h.documents.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// update replaces a document's content, re-chunking and re-embedding it.
func (h *DocumentHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	doc, err := h.documents.Reingest(r.Context(), id, req.Title, req.Text)
	if err != nil {
		if !errors.Is(err, document.ErrNotFound) {
			h.logger.Error("failed to update document", "document_id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.documents.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
