package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/kudos-portal/models"
	"go.uber.org/zap"
)

func newMockRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewAuditRepository(WrapDB(db, zap.NewNop()), zap.NewNop()).(*AuditRepository)
	return repo, mock
}

func TestAuditRepository_Insert(t *testing.T) {
	t.Run("success with role and details", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		log := models.NewAuditLog("admin-1", "u1", models.AuditActionUserApprovedWithRole).
			WithRole(models.RoleLead).
			WithDetails(map[string]string{"role": "LEAD"}).
			WithRequest("req-1", "10.0.0.1", "browser")

		mock.ExpectExec("INSERT INTO approval_audit_logs").
			WithArgs(log.ID, "admin-1", "u1", "user_approved_with_role", "LEAD", "success",
				`{"role":"LEAD"}`, "10.0.0.1", "browser", "req-1", nil, log.Timestamp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure entry without details", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		log := models.NewAuditLog("admin-1", "u1", models.AuditActionUserRejected).
			WithError(errors.New("upstream down"))

		mock.ExpectExec("INSERT INTO approval_audit_logs").
			WithArgs(log.ID, "admin-1", "u1", "user_rejected", nil, "failure",
				nil, "", "", "", "upstream down", log.Timestamp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("INSERT INTO approval_audit_logs").WillReturnError(errors.New("connection refused"))

		err := repo.Insert(context.Background(), models.NewAuditLog("a", "u", models.AuditActionUserApproved))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAuditRepository_ListByTargetUser(t *testing.T) {
	columns := []string{"id", "actor_id", "target_user_id", "action", "role", "outcome",
		"details", "ip_address", "user_agent", "request_id", "error_message", "timestamp"}

	t.Run("scans rows", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		id := uuid.New()
		ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		mock.ExpectQuery("SELECT (.+) FROM approval_audit_logs WHERE target_user_id").
			WithArgs("u1", 10, 0).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(id.String(), "admin-1", "u1", "user_approved", nil, "success",
					nil, "10.0.0.1", "browser", "req-1", nil, ts).
				AddRow(uuid.New().String(), "admin-2", "u1", "user_updated", "ADMIN", "failure",
					[]byte(`{"role":"ADMIN"}`), "", "", "", "boom", ts.Add(-time.Hour)))

		logs, err := repo.ListByTargetUser(context.Background(), "u1", 10, 0)

		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, id, logs[0].ID)
		assert.Equal(t, models.AuditActionUserApproved, logs[0].Action)
		assert.Nil(t, logs[0].Role)
		assert.Empty(t, logs[0].Details)
		require.NotNil(t, logs[1].Role)
		assert.Equal(t, "ADMIN", *logs[1].Role)
		assert.JSONEq(t, `{"role":"ADMIN"}`, string(logs[1].Details))
		require.NotNil(t, logs[1].ErrorMessage)
		assert.Equal(t, "boom", *logs[1].ErrorMessage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit is clamped", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM approval_audit_logs").
			WithArgs("u1", maxListLimit, 0).
			WillReturnRows(sqlmock.NewRows(columns))

		logs, err := repo.ListByTargetUser(context.Background(), "u1", 0, -5)

		require.NoError(t, err)
		assert.NotNil(t, logs)
		assert.Empty(t, logs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM approval_audit_logs").WillReturnError(errors.New("timeout"))

		_, err := repo.ListByTargetUser(context.Background(), "u1", 10, 0)
		assert.Error(t, err)
	})
}

func TestAuditRepository_Ping(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		assert.NoError(t, repo.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query fails", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("gone"))

		err := repo.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database query check failed")
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS approval_audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, WrapDB(db, zap.NewNop()).InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
