package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carebot/carebot/internal/log"
)

// These tests exercise request validation, which rejects bad input before
// any store or engine access; handlers are constructed with nil deps.

func TestConversationHandler_BadRequests(t *testing.T) {
	handler := NewConversationHandler(nil, log.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"invalid JSON", http.MethodPost, "/conversations", `{not json`},
		{"missing user_id", http.MethodPost, "/conversations", `{}`},
		{"user_id too long", http.MethodPost, "/conversations", `{"user_id":"` + strings.Repeat("x", 101) + `"}`},
		{"list with oversized user id", http.MethodGet, "/users/" + strings.Repeat("x", 101) + "/conversations", ""},
		{"get with bad uuid", http.MethodGet, "/conversations/not-a-uuid", ""},
		{"delete with bad uuid", http.MethodDelete, "/conversations/not-a-uuid", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestMessageHandler_BadRequests(t *testing.T) {
	handler := NewMessageHandler(nil, nil, log.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad conversation uuid", "/conversations/nope/messages", `{"text":"hi"}`},
		{"invalid JSON", "/conversations/1b4e28ba-2fa1-11d2-883f-0016d3cca427/messages", `{`},
		{"empty text", "/conversations/1b4e28ba-2fa1-11d2-883f-0016d3cca427/messages", `{"text":""}`},
		{"text too long", "/conversations/1b4e28ba-2fa1-11d2-883f-0016d3cca427/messages",
			`{"text":"` + strings.Repeat("a", MaxMessageLength+1) + `"}`},
		{"bad message uuid", "/messages/nope/tool-results", `{"result":{}}`},
		{"missing result", "/messages/1b4e28ba-2fa1-11d2-883f-0016d3cca427/tool-results", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDocumentHandler_BadRequests(t *testing.T) {
	handler := NewDocumentHandler(nil, log.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"invalid JSON", http.MethodPost, "/documents", `{`},
		{"missing fields", http.MethodPost, "/documents", `{"title":"x"}`},
		{"title too long", http.MethodPost, "/documents",
			`{"title":"` + strings.Repeat("t", MaxDocumentTitleLength+1) + `","text":"c"}`},
		{"bad uuid", http.MethodGet, "/documents/nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestParseIntParam(t *testing.T) {
	mk := func(q string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/?"+q, nil)
	}

	assert.Equal(t, 100, parseIntParam(mk(""), "limit", 100, 1, 1000))
	assert.Equal(t, 50, parseIntParam(mk("limit=50"), "limit", 100, 1, 1000))
	assert.Equal(t, 1, parseIntParam(mk("limit=0"), "limit", 100, 1, 1000))
	assert.Equal(t, 1000, parseIntParam(mk("limit=99999"), "limit", 100, 1, 1000))
	assert.Equal(t, 100, parseIntParam(mk("limit=abc"), "limit", 100, 1, 1000))
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := chain(panicky, recoveryMiddleware(log.NewNop()), loggingMiddleware(log.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
