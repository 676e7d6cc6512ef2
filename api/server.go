// Package api provides the HTTP REST API for the assistant.
//
// Endpoints:
//
//	GET    /health                         → liveness probe
//	GET    /ready                          → readiness probe (pings the database)
//	POST   /conversations                  → create conversation
//	GET    /users/{userId}/conversations   → list a user's conversations
//	GET    /conversations/{id}             → conversation with message history
//	DELETE /conversations/{id}             → delete conversation
//	POST   /conversations/{id}/messages    → send a user message, returns the assistant reply
//	POST   /messages/{id}/tool-results     → supply a pending tool result and resume
//	POST   /documents                      → ingest a document
//	GET    /documents                      → list documents
//	GET    /documents/{id}                 → fetch a document
//	PUT    /documents/{id}                 → replace a document (re-chunks and re-embeds)
//	DELETE /documents/{id}                 → delete a document
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carebot/carebot/internal/chat"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/document"
	"github.com/carebot/carebot/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generous because a reply may span several model and tool rounds.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the assistant's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health       *HealthHandler
	conversation *ConversationHandler
	message      *MessageHandler
	document     *DocumentHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, conversations *conversation.Store, documents *document.Service, engine *chat.Engine, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:          mux,
		logger:       logger,
		health:       NewHealthHandler(pool, logger),
		conversation: NewConversationHandler(conversations, logger),
		message:      NewMessageHandler(conversations, engine, logger),
		document:     NewDocumentHandler(documents, logger),
	}

	s.health.RegisterRoutes(mux)
	s.conversation.RegisterRoutes(mux)
	s.message.RegisterRoutes(mux)
	s.document.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: tracing → recovery → logging → handler. The otelhttp
// wrapper opens a server span per request against the globally installed
// tracer provider (a no-op one when tracing is disabled).
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	), "carebot.api")
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
