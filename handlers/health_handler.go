package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/kudos-portal/services/audit"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
)

// Check states reported by /readyz
const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkDisabled  = "disabled"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// AuditQueue reports the state of the background audit writer
type AuditQueue interface {
	GetStats() audit.Stats
}

// HealthHandler serves the liveness and readiness endpoints
type HealthHandler struct {
	auditDB    *sql.DB
	auditQueue AuditQueue
	logger     *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. auditDB and auditQueue are
// nil when audit persistence is disabled.
func NewHealthHandler(auditDB *sql.DB, auditQueue AuditQueue, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		auditDB:    auditDB,
		auditQueue: auditQueue,
		logger:     logger,
	}
}

// HandleHealth handles GET /healthz. It always returns 200 while the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    checkHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz. The identity service is not checked:
// its outages already fail closed at the guard.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"audit_database": checkDisabled}
	status, httpStatus := checkHealthy, http.StatusOK

	if h.auditDB != nil {
		if err := h.checkDatabase(ctx); err != nil {
			h.logger.Warn("audit database health check failed", zap.Error(err))
			checks["audit_database"] = checkUnhealthy
			status, httpStatus = checkUnhealthy, http.StatusServiceUnavailable
		} else {
			checks["audit_database"] = checkHealthy
		}
	}

	if h.auditQueue != nil {
		checks["audit_queue"] = checkHealthy
		if stats := h.auditQueue.GetStats(); !stats.Started || stats.PendingEvents >= stats.BufferSize {
			h.logger.Warn("audit queue not accepting events",
				zap.Bool("started", stats.Started),
				zap.Int("pending_events", stats.PendingEvents),
				zap.Int("buffer_size", stats.BufferSize))
			checks["audit_queue"] = checkUnhealthy
			status, httpStatus = checkUnhealthy, http.StatusServiceUnavailable
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.auditDB.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.auditDB.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
