package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Role tests
func TestParseRole(t *testing.T) {
	tests := []struct {
		in    string
		want  Role
		valid bool
	}{
		{"ADMIN", RoleAdmin, true},
		{"lead", RoleLead, true},
		{" Member ", RoleMember, true},
		{"", Role(""), false},
		{"SUPERUSER", Role("SUPERUSER"), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestSwitchRole(t *testing.T) {
	pick := func(r Role) string { return SwitchRole(r, "admin", "lead", "member") }

	assert.Equal(t, "admin", pick(RoleAdmin))
	assert.Equal(t, "lead", pick(RoleLead))
	assert.Equal(t, "member", pick(RoleMember))

	t.Run("unknown and empty roles take the least privileged branch", func(t *testing.T) {
		assert.Equal(t, "member", pick(Role("")))
		assert.Equal(t, "member", pick(Role("admin")))
		assert.Equal(t, "member", pick(Role("ROOT")))
	})
}

func TestApprovalStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusApproved.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, ApprovalStatus("ACTIVE").Valid())
}

// Identity tests
func TestIdentity_JSONUnmarshaling(t *testing.T) {
	raw := `{"id":"u1","name":"Ada","email":"ada@example.com","role":"ADMIN","status":"APPROVED","jobTitle":"Engineer"}`

	var id Identity
	require.NoError(t, json.Unmarshal([]byte(raw), &id))

	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, RoleAdmin, id.Role)
	assert.Equal(t, StatusApproved, id.Status)
	assert.Equal(t, "Engineer", id.JobTitle)
}

func TestIdentity_DisplayName(t *testing.T) {
	var nilID *Identity
	assert.Equal(t, "", nilID.DisplayName())

	assert.Equal(t, "Ada", (&Identity{Name: "Ada", Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "ada@example.com", (&Identity{Email: "ada@example.com"}).DisplayName())
}

func TestUserUpdate_IsEmpty(t *testing.T) {
	assert.True(t, UserUpdate{}.IsEmpty())

	name := "New"
	assert.False(t, UserUpdate{Name: &name}.IsEmpty())
}

func TestUserUpdate_JSONOmitsNilFields(t *testing.T) {
	role := RoleLead
	data, err := json.Marshal(UserUpdate{Role: &role})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"LEAD"}`, string(data))
}

// AuditLog tests
func TestNewAuditLog(t *testing.T) {
	log := NewAuditLog("admin-1", "u1", AuditActionUserApproved)

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, "admin-1", log.ActorID)
	assert.Equal(t, "u1", log.TargetUserID)
	assert.Equal(t, AuditActionUserApproved, log.Action)
	assert.Equal(t, AuditOutcomeSuccess, log.Outcome)
	assert.False(t, log.Timestamp.IsZero())
}

func TestAuditLog_Builders(t *testing.T) {
	log := NewAuditLog("admin-1", "u1", AuditActionUserApprovedWithRole).
		WithRole(RoleLead).
		WithRequest("req-1", "10.0.0.1", "test-agent").
		WithDetails(map[string]string{"source": "approvals_page"})

	require.NotNil(t, log.Role)
	assert.Equal(t, "LEAD", *log.Role)
	assert.Equal(t, "req-1", log.RequestID)
	assert.Equal(t, "10.0.0.1", log.IPAddress)
	assert.JSONEq(t, `{"source":"approvals_page"}`, string(log.Details))

	t.Run("WithError marks failure and keeps the cause", func(t *testing.T) {
		log.WithError(errors.New("upstream timeout"))
		assert.Equal(t, AuditOutcomeFailure, log.Outcome)
		require.NotNil(t, log.ErrorMessage)
		assert.Equal(t, "upstream timeout", *log.ErrorMessage)
	})

	t.Run("WithError ignores nil", func(t *testing.T) {
		fresh := NewAuditLog("a", "b", AuditActionUserRejected).WithError(nil)
		assert.Equal(t, AuditOutcomeSuccess, fresh.Outcome)
		assert.Nil(t, fresh.ErrorMessage)
	})
}
