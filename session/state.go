// Package session holds the per-request session state produced by the auth
// guard. Handlers read it from the request context; nothing here is global.
package session

import (
	"context"

	"github.com/upb/kudos-portal/models"
)

// Status is the resolution state of the current session
type Status int

const (
	// StatusAnonymous is the zero value so an unset State is never trusted
	StatusAnonymous Status = iota
	// StatusLoading means verification has not resolved yet
	StatusLoading
	// StatusAuthenticated means the identity service vouched for the token
	StatusAuthenticated
)

// String returns the status name used in logs and JSON
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// MarshalText lets Status render as its name in JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the explicit session value passed to role gates and navigation
type State struct {
	Status   Status           `json:"status"`
	Identity *models.Identity `json:"identity,omitempty"`
}

// Anonymous returns the unauthenticated state
func Anonymous() State {
	return State{Status: StatusAnonymous}
}

// Loading returns the unresolved state
func Loading() State {
	return State{Status: StatusLoading}
}

// Authenticated returns a verified state. A nil identity yields Anonymous.
func Authenticated(identity *models.Identity) State {
	if identity == nil {
		return Anonymous()
	}
	return State{Status: StatusAuthenticated, Identity: identity}
}

// IsAuthenticated reports whether the state carries a verified identity
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}

// IsLoading reports whether verification is still in flight
func (s State) IsLoading() bool {
	return s.Status == StatusLoading
}

// Role returns the verified role. ok is false for unverified sessions.
func (s State) Role() (role models.Role, ok bool) {
	if !s.IsAuthenticated() {
		return "", false
	}
	return s.Identity.Role, true
}

// HasRole reports whether the verified role is one of roles
func (s State) HasRole(roles ...models.Role) bool {
	role, ok := s.Role()
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const (
	stateKey  contextKey = "session_state"
	tokenKey  contextKey = "session_token"
	clientKey contextKey = "session_client"
)

// ClientInfo describes where the request came from, for audit records
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithState stores the session state in the context
func WithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

// FromContext returns the session state, or Anonymous when none was stored
func FromContext(ctx context.Context) State {
	if val := ctx.Value(stateKey); val != nil {
		if state, ok := val.(State); ok {
			return state
		}
	}
	return Anonymous()
}

// IdentityFromContext returns the verified identity, or nil
func IdentityFromContext(ctx context.Context) *models.Identity {
	state := FromContext(ctx)
	if !state.IsAuthenticated() {
		return nil
	}
	return state.Identity
}

// WithToken stores the caller's bearer token for forwarding to backend services
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the forwarded bearer token, if any
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// WithClient stores the caller's client info in the context
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, info)
}

// ClientFromContext returns the caller's client info, or the zero value
func ClientFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientKey).(ClientInfo)
	return info
}
