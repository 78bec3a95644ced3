package repositories

import (
	"context"

	"github.com/upb/kudos-portal/models"
)

// AuditRepository handles approval audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByTargetUser retrieves the audit trail for one user, newest first
	ListByTargetUser(ctx context.Context, targetUserID string, limit, offset int) ([]*models.AuditLog, error)

	// Ping checks that the backing store is reachable
	Ping(ctx context.Context) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	AuditLogs AuditRepository
}
