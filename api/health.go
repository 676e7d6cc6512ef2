package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebot/carebot/internal/log"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewHealthHandler creates a health handler. pool is used for readiness
// checks.
func NewHealthHandler(pool *pgxpool.Pool, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// healthStatus is the probe response body.
type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// liveness reports that the process is up; it never touches dependencies.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "ok"})
}

// readiness reports whether the service can answer real traffic. The only
// hard dependency checked is the database; the LLM provider is not probed
// because a transient provider outage degrades answers without making the
// conversation and document endpoints unusable.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.pool == nil {
		checks["database"] = "not configured"
		writeJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Checks: checks})
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "check", "database", "error", err)
		checks["database"] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Checks: checks})
		return
	}
	checks["database"] = "ok"

	writeJSON(w, http.StatusOK, healthStatus{Status: "ready", Checks: checks})
}
