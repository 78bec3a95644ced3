package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

// ApprovalService is the approval workflow used by pages and the JSON API
type ApprovalService interface {
	ListPending(ctx context.Context) ([]*models.Identity, error)
	Approve(ctx context.Context, userID string) (*models.Identity, error)
	ApproveWithRole(ctx context.Context, userID string, role *models.Role) (*models.Identity, error)
	Reject(ctx context.Context, userID string) (*models.Identity, error)
	Update(ctx context.Context, userID string, update models.UserUpdate) (*models.Identity, error)
}

// AuditReader reads the persisted approval audit trail
type AuditReader interface {
	ListByTargetUser(ctx context.Context, targetUserID string, limit, offset int) ([]*models.AuditLog, error)
}

// ApprovalHandler serves the admin approval JSON API
type ApprovalHandler struct {
	approvals ApprovalService
	audit     AuditReader
	logger    *zap.Logger
}

// NewApprovalHandler creates a new ApprovalHandler. audit may be nil when
// audit persistence is disabled.
func NewApprovalHandler(approvals ApprovalService, audit AuditReader, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvals: approvals,
		audit:     audit,
		logger:    logger,
	}
}

type roleRequest struct {
	Role *models.Role `json:"role"`
}

// HandleListPending handles GET /api/v1/users/pending
func (h *ApprovalHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	users, err := h.approvals.ListPending(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, users)
}

// HandleApprove handles POST /api/v1/users/{id}/approve
func (h *ApprovalHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	user, err := h.approvals.Approve(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, user, err, "User approved")
}

// HandleApproveWithRole handles POST /api/v1/users/{id}/approve-with-role
func (h *ApprovalHandler) HandleApproveWithRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	user, err := h.approvals.ApproveWithRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	h.respond(w, user, err, "User approved with role")
}

// HandleReject handles POST /api/v1/users/{id}/reject
func (h *ApprovalHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	user, err := h.approvals.Reject(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, user, err, "User rejected")
}

// HandleUpdate handles PATCH /api/v1/users/{id}
func (h *ApprovalHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var update models.UserUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	user, err := h.approvals.Update(r.Context(), chi.URLParam(r, "id"), update)
	h.respond(w, user, err, "User updated")
}

// HandleAuditTrail handles GET /api/v1/users/{id}/audit
func (h *ApprovalHandler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		_ = utils.WriteNotFound(w, "Audit trail is not enabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.audit.ListByTargetUser(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.logger.Error("failed to read audit trail", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to read audit trail")
		return
	}
	_ = utils.WriteOK(w, logs)
}

func (h *ApprovalHandler) respond(w http.ResponseWriter, user *models.Identity, err error, message string) {
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, user, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
