package middleware

import (
	"context"
	"net/http"

	"github.com/upb/kudos-portal/auth"
	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/session"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
)

// Guard names used as metric labels
const (
	guardPage  = "page"
	guardAPI   = "api"
	guardLogin = "login"
	guardRole  = "role"
)

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	guard       *Guard
	store       auth.TokenStore
	landingPath string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(guard *Guard, store auth.TokenStore, landingPath string, metrics *observability.Metrics, logger *zap.Logger) *AuthMiddleware {
	if landingPath == "" {
		landingPath = "/kudos-wall"
	}
	return &AuthMiddleware{
		guard:       guard,
		store:       store,
		landingPath: landingPath,
		metrics:     metrics,
		logger:      logger,
	}
}

// RequirePage guards a server-rendered page. Denied requests are redirected to
// the login page; a rejected token is cleared so the login guard does not
// bounce the user straight back.
func (m *AuthMiddleware) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := m.guard.Evaluate(r)
		if !decision.Allowed() {
			m.metrics.RecordGuardDecision(guardPage, decision.Reason)
			if decision.Token != "" {
				m.store.ClearToken(w)
			}
			utils.Redirect(w, r, decision.Redirect, "")
			return
		}

		m.metrics.RecordGuardDecision(guardPage, "verified")
		next.ServeHTTP(w, r.WithContext(withDecision(r, decision)))
	})
}

// RequireAPI guards a JSON endpoint. Denied requests get 401.
func (m *AuthMiddleware) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := m.guard.Evaluate(r)
		if !decision.Allowed() {
			m.metrics.RecordGuardDecision(guardAPI, decision.Reason)
			_ = utils.WriteUnauthorized(w, "Please log in")
			return
		}

		m.metrics.RecordGuardDecision(guardAPI, "verified")
		next.ServeHTTP(w, r.WithContext(withDecision(r, decision)))
	})
}

// RedirectIfAuthenticated is the inverse guard for the login page. It only
// checks token presence and never calls the identity service.
func (m *AuthMiddleware) RedirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.guard.HasToken(r) {
			m.metrics.RecordGuardDecision(guardLogin, "redirect")
			utils.Redirect(w, r, m.landingPath, "")
			return
		}

		m.metrics.RecordGuardDecision(guardLogin, "pass")
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects JSON requests whose verified role is not in roles.
// It must run after RequireAPI.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := session.FromContext(r.Context())
			if !state.IsAuthenticated() {
				m.logger.Error("session not found in context",
					zap.String("request_id", GetRequestIDFromContext(r.Context())))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !state.HasRole(roles...) {
				m.metrics.RecordGuardDecision(guardRole, "forbidden")
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("user_id", state.Identity.ID),
					zap.String("role", string(state.Identity.Role)))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePageRole is RequireRole for pages: other roles are sent back to the
// landing page instead of receiving a JSON error. It must run after RequirePage.
func (m *AuthMiddleware) RequirePageRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := session.FromContext(r.Context())
			if !state.IsAuthenticated() {
				utils.Redirect(w, r, m.guard.LoginPath(), "")
				return
			}

			if !state.HasRole(roles...) {
				m.metrics.RecordGuardDecision(guardRole, "forbidden")
				m.logger.Info("page access denied for role",
					zap.String("user_id", state.Identity.ID),
					zap.String("role", string(state.Identity.Role)),
					zap.String("path", r.URL.Path))
				utils.Redirect(w, r, m.landingPath, "You do not have access to that page")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func withDecision(r *http.Request, d Decision) context.Context {
	ctx := session.WithState(r.Context(), d.Session())
	ctx = session.WithToken(ctx, d.Token)
	return session.WithClient(ctx, session.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}
