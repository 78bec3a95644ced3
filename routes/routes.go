package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/kudos-portal/app"
	"github.com/upb/kudos-portal/handlers"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/utils"
	"github.com/upb/kudos-portal/views"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config
	authz := deps.AuthMiddleware

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(deps.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, cfg.Observability.MetricsPath, deps.Metrics.Handler())
	}

	// Login is guarded by token presence only
	r.Group(func(r chi.Router) {
		r.Use(authz.RedirectIfAuthenticated)
		r.Get(views.PathLogin, deps.AuthHandler.HandleLoginForm)
		login := http.Handler(http.HandlerFunc(deps.AuthHandler.HandleLogin))
		if deps.LoginThrottle != nil {
			login = deps.LoginThrottle.Limit(login)
		}
		r.Method(http.MethodPost, views.PathLogin, login)
	})
	r.Get(views.PathLogout, deps.AuthHandler.HandleLogout)
	r.Post(views.PathLogout, deps.AuthHandler.HandleLogout)

	// Server-rendered pages, verified on every navigation
	pages := deps.PageHandler
	r.Group(func(r chi.Router) {
		r.Use(authz.RequirePage)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			utils.Redirect(w, r, cfg.Session.LandingPath, "")
		})
		r.Get(views.PathKudosWall, pages.HandleKudosWall)
		r.Get(views.PathDashboard, pages.HandleDashboard)
		r.Get(views.PathSendKudos, pages.HandleSendKudos)

		r.With(authz.RequirePageRole(models.RoleAdmin, models.RoleLead)).
			Get(views.PathAnalytics, pages.HandleAnalytics)

		r.Route(views.PathApprovals, func(r chi.Router) {
			r.Use(authz.RequirePageRole(models.RoleAdmin))
			r.Get("/", pages.HandleApprovals)
			r.Post("/{id}/approve", pages.HandleApprove)
			r.Post("/{id}/approve-with-role", pages.HandleApproveWithRole)
			r.Post("/{id}/reject", pages.HandleReject)
		})
	})

	// API v1 routes
	api := deps.ApprovalHandler
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(authz.RequireAPI)

		r.Get("/session", handlers.HandleSession)

		// User approval (admin only)
		r.Route("/users", func(r chi.Router) {
			r.Use(authz.RequireRole(models.RoleAdmin))
			r.Get("/pending", api.HandleListPending)
			r.Patch("/{id}", api.HandleUpdate)
			r.Get("/{id}/audit", api.HandleAuditTrail)
			r.Post("/{id}/approve", api.HandleApprove)
			r.Post("/{id}/approve-with-role", api.HandleApproveWithRole)
			r.Post("/{id}/reject", api.HandleReject)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			_ = utils.WriteNotFound(w, "endpoint not found")
			return
		}
		pages.HandleNotFound(w, r)
	})

	return r
}
