package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/kudos-portal/auth"
	"github.com/upb/kudos-portal/identity"
	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/session"
	"go.uber.org/zap"
)

// Verifier resolves a session token to the identity that owns it
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

// GuardState is a state of the per-request guard machine
type GuardState int

const (
	StateNoToken GuardState = iota
	StateUnverified
	StateVerified
	StateDenied
)

// String returns the state name
func (s GuardState) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	default:
		return "denied"
	}
}

// Decision is the terminal outcome of one guard evaluation
type Decision struct {
	State    GuardState
	Identity *models.Identity
	Token    string
	// Redirect is the login path when the decision is Denied
	Redirect string
	// Reason labels the denial for logs and metrics; never shown to users
	Reason string
}

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.State == StateVerified && d.Identity != nil
}

// Session converts the decision into the session state handed to pages
func (d Decision) Session() session.State {
	if !d.Allowed() {
		return session.Anonymous()
	}
	return session.Authenticated(d.Identity)
}

// Guard composes the token store and the verifier into an allow or redirect
// decision. It keeps no state between evaluations.
type Guard struct {
	store     auth.TokenStore
	verifier  Verifier
	loginPath string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewGuard creates a new Guard
func NewGuard(store auth.TokenStore, verifier Verifier, loginPath string, metrics *observability.Metrics, logger *zap.Logger) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Guard{
		store:     store,
		verifier:  verifier,
		loginPath: loginPath,
		metrics:   metrics,
		logger:    logger,
	}
}

// LoginPath returns the redirect target for denied requests
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Evaluate runs NoToken -> Unverified -> {Verified, Denied} for one request.
// Every failure mode collapses to Denied.
func (g *Guard) Evaluate(r *http.Request) Decision {
	token, ok := g.store.Token(r)
	if !ok {
		return g.deny(StateNoToken, "", "no_token")
	}
	return g.verify(r.Context(), token)
}

// HasToken reports token presence without verifying it
func (g *Guard) HasToken(r *http.Request) bool {
	_, ok := g.store.Token(r)
	return ok
}

func (g *Guard) verify(ctx context.Context, token string) Decision {
	start := time.Now()
	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		reason := identity.Reason(err)
		g.metrics.RecordVerification(time.Since(start), reason)
		observability.WithRequest(ctx, g.logger).Info("session verification failed",
			zap.String("reason", reason),
			zap.Error(err))
		return g.deny(StateUnverified, token, reason)
	}
	g.metrics.RecordVerification(time.Since(start), "")

	if id == nil || id.ID == "" {
		return g.deny(StateUnverified, token, "malformed")
	}

	return Decision{
		State:    StateVerified,
		Identity: id,
		Token:    token,
	}
}

// deny records which state the machine left from; the result is always Denied
func (g *Guard) deny(from GuardState, token, reason string) Decision {
	g.logger.Debug("guard denied request",
		zap.Stringer("from", from),
		zap.String("reason", reason))
	return Decision{
		State:    StateDenied,
		Token:    token,
		Redirect: g.loginPath,
		Reason:   reason,
	}
}
