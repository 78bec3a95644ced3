// Package approval implements the admin workflow for onboarding pending users.
package approval

import (
	"context"
	"sort"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/services"
	"github.com/upb/kudos-portal/session"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
)

// Operation names used in logs, metrics and audit records
const (
	OpListPending     = "list_pending"
	OpApprove         = "approve"
	OpApproveWithRole = "approve_with_role"
	OpReject          = "reject"
	OpUpdate          = "update"
)

// UserManagement is the external service the workflow delegates to
type UserManagement interface {
	GetPendingUsers(ctx context.Context) ([]*models.Identity, error)
	ApproveUser(ctx context.Context, userID string) (*models.Identity, error)
	ApproveUserWithRole(ctx context.Context, userID string, role models.Role) (*models.Identity, error)
	RejectUser(ctx context.Context, userID string) (*models.Identity, error)
	UpdateUser(ctx context.Context, userID string, update models.UserUpdate) (*models.Identity, error)
}

// Auditor receives one record per attempted mutation
type Auditor interface {
	Record(ctx context.Context, log *models.AuditLog)
}

// Service validates input, delegates to the user-management service and
// normalizes failures into DomainErrors
type Service struct {
	users   UserManagement
	auditor Auditor
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewService creates a new approval Service
func NewService(users UserManagement, auditor Auditor, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		users:   users,
		auditor: auditor,
		metrics: metrics,
		logger:  logger,
	}
}

type userInput struct {
	UserID string `json:"user_id" validate:"required"`
}

type roleInput struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=ADMIN LEAD MEMBER"`
}

// ListPending returns the users awaiting approval. It performs no caching;
// callers re-fetch after every mutation.
func (s *Service) ListPending(ctx context.Context) ([]*models.Identity, error) {
	users, err := s.users.GetPendingUsers(ctx)
	if err != nil {
		s.metrics.RecordApproval(OpListPending, "failure")
		return nil, s.normalize(ctx, OpListPending, "", "Failed to load pending users", err)
	}
	s.metrics.RecordApproval(OpListPending, "success")
	if users == nil {
		users = []*models.Identity{}
	}
	return users, nil
}

// Approve approves a pending user
func (s *Service) Approve(ctx context.Context, userID string) (*models.Identity, error) {
	userID = strings.TrimSpace(userID)
	if err := s.validate(OpApprove, &userInput{UserID: userID}); err != nil {
		return nil, err
	}

	user, err := s.users.ApproveUser(ctx, userID)
	s.audit(ctx, OpApprove, models.NewAuditLog(actorID(ctx), userID, models.AuditActionUserApproved), err)
	if err != nil {
		return nil, s.normalize(ctx, OpApprove, userID, "Failed to approve user", err)
	}
	return user, nil
}

// ApproveWithRole approves a pending user and assigns role. A nil or empty
// role fails validation.
func (s *Service) ApproveWithRole(ctx context.Context, userID string, role *models.Role) (*models.Identity, error) {
	userID = strings.TrimSpace(userID)
	in := &roleInput{UserID: userID}
	if role != nil {
		in.Role = string(*role)
	}
	if err := s.validate(OpApproveWithRole, in); err != nil {
		return nil, err
	}

	granted := models.Role(in.Role)
	user, err := s.users.ApproveUserWithRole(ctx, userID, granted)
	s.audit(ctx, OpApproveWithRole, models.NewAuditLog(actorID(ctx), userID, models.AuditActionUserApprovedWithRole).WithRole(granted), err)
	if err != nil {
		return nil, s.normalize(ctx, OpApproveWithRole, userID, "Failed to approve user with role", err)
	}
	return user, nil
}

// Reject rejects a pending user
func (s *Service) Reject(ctx context.Context, userID string) (*models.Identity, error) {
	userID = strings.TrimSpace(userID)
	if err := s.validate(OpReject, &userInput{UserID: userID}); err != nil {
		return nil, err
	}

	user, err := s.users.RejectUser(ctx, userID)
	s.audit(ctx, OpReject, models.NewAuditLog(actorID(ctx), userID, models.AuditActionUserRejected), err)
	if err != nil {
		return nil, s.normalize(ctx, OpReject, userID, "Failed to reject user", err)
	}
	return user, nil
}

// Update applies a partial update. Failures from the user service are
// returned unchanged.
func (s *Service) Update(ctx context.Context, userID string, update models.UserUpdate) (*models.Identity, error) {
	userID = strings.TrimSpace(userID)
	if err := s.validate(OpUpdate, &userInput{UserID: userID}); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		s.metrics.RecordApproval(OpUpdate, "invalid")
		return nil, services.ErrEmptyUpdate
	}
	if err := s.validate(OpUpdate, &update); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateUser(ctx, userID, update)
	entry := models.NewAuditLog(actorID(ctx), userID, models.AuditActionUserUpdated).WithDetails(update)
	if update.Role != nil {
		entry.WithRole(*update.Role)
	}
	s.audit(ctx, OpUpdate, entry, err)
	if err != nil {
		s.logger.Warn("user update failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}
	return user, nil
}

// validate runs struct validation and converts failures to a validation
// DomainError listing each field
func (s *Service) validate(op string, input interface{}) error {
	err := utils.ValidateStruct(input)
	if err == nil {
		return nil
	}
	s.metrics.RecordApproval(op, "invalid")

	fields := utils.GetValidationFields(err)
	if fields == nil {
		return services.WrapInternal("validation could not run", err)
	}

	if sentinel := inputSentinel(input, fields); sentinel != nil {
		return services.NewDomainError(sentinel.Type, sentinel.Message, sentinel).
			WithDetail("fields", fields)
	}

	msgs := make([]string, 0, len(fields))
	for _, msg := range fields {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)

	return services.NewDomainError(services.ErrorTypeValidation, strings.Join(msgs, "; "), err).
		WithDetail("fields", fields)
}

// inputSentinel names the failures of the id and role inputs. A missing id
// wins over a bad role.
func inputSentinel(input interface{}, fields map[string]string) *services.DomainError {
	if _, ok := fields["user_id"]; ok {
		return services.ErrMissingUserID
	}
	in, ok := input.(*roleInput)
	if !ok {
		return nil
	}
	if _, bad := fields["role"]; !bad {
		return nil
	}
	if in.Role == "" {
		return services.ErrMissingRole
	}
	return services.ErrInvalidRole
}

// normalize passes typed errors through and wraps anything else as an
// external failure, logging the original cause
func (s *Service) normalize(ctx context.Context, op, userID, message string, err error) error {
	if services.IsDomainError(err) {
		s.logger.Info("approval operation rejected",
			zap.String("operation", op),
			zap.String("user_id", userID),
			zap.Error(err))
		return err
	}

	observability.WithRequest(ctx, s.logger).Error("approval operation failed",
		zap.String("operation", op),
		zap.String("user_id", userID),
		zap.Error(err))
	return services.WrapExternal(message, err)
}

// audit records the outcome of a mutation and counts it under op
func (s *Service) audit(ctx context.Context, op string, entry *models.AuditLog, err error) {
	client := session.ClientFromContext(ctx)
	entry.WithRequest(chimiddleware.GetReqID(ctx), client.IPAddress, client.UserAgent).WithError(err)

	s.metrics.RecordApproval(op, string(entry.Outcome))

	if s.auditor != nil {
		s.auditor.Record(ctx, entry)
	}
}

func actorID(ctx context.Context) string {
	if id := session.IdentityFromContext(ctx); id != nil {
		return id.ID
	}
	return ""
}
