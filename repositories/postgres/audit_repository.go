package postgres

import (
	"context"
	"fmt"

	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/repositories"
	"go.uber.org/zap"
)

const maxListLimit = 500

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO approval_audit_logs (
			id, actor_id, target_user_id, action, role, outcome,
			details, ip_address, user_agent, request_id, error_message, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.TargetUserID,
		string(log.Action),
		log.Role,
		string(log.Outcome),
		jsonParam(log.Details),
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.ErrorMessage,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted",
		zap.String("id", log.ID.String()),
		zap.String("action", string(log.Action)))
	return nil
}

// ListByTargetUser retrieves the audit trail for one user, newest first
func (r *AuditRepository) ListByTargetUser(ctx context.Context, targetUserID string, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, actor_id, target_user_id, action, role, outcome,
		       details, ip_address, user_agent, request_id, error_message, timestamp
		FROM approval_audit_logs
		WHERE target_user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, targetUserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var (
			log     models.AuditLog
			details []byte
		)
		err := rows.Scan(
			&log.ID,
			&log.ActorID,
			&log.TargetUserID,
			&log.Action,
			&log.Role,
			&log.Outcome,
			&details,
			&log.IPAddress,
			&log.UserAgent,
			&log.RequestID,
			&log.ErrorMessage,
			&log.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.Details = details
		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// Ping checks that the audit database is reachable
func (r *AuditRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// jsonParam sends JSONB as text; lib/pq would otherwise encode []byte as bytea
func jsonParam(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
