package models

import (
	"strings"
	"time"
)

// Role is the closed set of entitlement roles a verified identity can hold
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleLead   Role = "LEAD"
	RoleMember Role = "MEMBER"
)

// Roles lists every role in ascending privilege order
var Roles = []Role{RoleMember, RoleLead, RoleAdmin}

// ParseRole normalizes a role string. Unknown values report false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether the role belongs to the closed set
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLead, RoleMember:
		return true
	}
	return false
}

// SwitchRole is the single exhaustive match over Role. Every gate site goes
// through it so adding a role is a compile error until each site handles it.
// Unknown or empty roles take the member branch.
func SwitchRole[T any](role Role, admin, lead, member T) T {
	switch role {
	case RoleAdmin:
		return admin
	case RoleLead:
		return lead
	default:
		return member
	}
}

// ApprovalStatus tracks a user's onboarding state, independent of Role
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusRejected ApprovalStatus = "REJECTED"
)

// Valid reports whether the status belongs to the closed set
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Identity is the authoritative user record returned by the identity and
// user-management services. It is never built from client state.
type Identity struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Role      Role           `json:"role"`
	Status    ApprovalStatus `json:"status"`
	JobTitle  string         `json:"jobTitle,omitempty"`
	TeamID    string         `json:"teamId,omitempty"`
	CreatedAt *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

// DisplayName falls back to the email when no name is set
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// UserUpdate is a partial user mutation; nil fields are left untouched
type UserUpdate struct {
	Name     *string         `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Email    *string         `json:"email,omitempty" validate:"omitempty,email"`
	Role     *Role           `json:"role,omitempty" validate:"omitempty,oneof=ADMIN LEAD MEMBER"`
	Status   *ApprovalStatus `json:"status,omitempty" validate:"omitempty,oneof=PENDING APPROVED REJECTED"`
	JobTitle *string         `json:"jobTitle,omitempty" validate:"omitempty,max=255"`
	TeamID   *string         `json:"teamId,omitempty"`
}

// IsEmpty reports whether the update carries no fields
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil &&
		u.Status == nil && u.JobTitle == nil && u.TeamID == nil
}
