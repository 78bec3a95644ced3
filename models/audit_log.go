package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of approval action being audited
type AuditAction string

const (
	AuditActionUserApproved         AuditAction = "user_approved"
	AuditActionUserApprovedWithRole AuditAction = "user_approved_with_role"
	AuditActionUserRejected         AuditAction = "user_rejected"
	AuditActionUserUpdated          AuditAction = "user_updated"
)

// AuditOutcome records whether the audited mutation succeeded
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
)

// AuditLog represents an audit trail entry for the approval workflow
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ActorID      string          `json:"actor_id" db:"actor_id"`
	TargetUserID string          `json:"target_user_id" db:"target_user_id"`
	Action       AuditAction     `json:"action" db:"action"`
	Role         *string         `json:"role,omitempty" db:"role"`
	Outcome      AuditOutcome    `json:"outcome" db:"outcome"`
	Details      json.RawMessage `json:"details" db:"details"` // JSONB
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// NewAuditLog creates a new successful AuditLog entry
func NewAuditLog(actorID, targetUserID string, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		ActorID:      actorID,
		TargetUserID: targetUserID,
		Action:       action,
		Outcome:      AuditOutcomeSuccess,
		Timestamp:    time.Now(),
	}
}

// WithRole sets the role granted by the action
func (a *AuditLog) WithRole(role Role) *AuditLog {
	r := string(role)
	a.Role = &r
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithError marks the entry as failed and keeps the original cause
func (a *AuditLog) WithError(err error) *AuditLog {
	if err == nil {
		return a
	}
	msg := err.Error()
	a.Outcome = AuditOutcomeFailure
	a.ErrorMessage = &msg
	return a
}
