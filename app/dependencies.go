package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/kudos-portal/auth"
	"github.com/upb/kudos-portal/config"
	"github.com/upb/kudos-portal/handlers"
	"github.com/upb/kudos-portal/identity"
	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/middleware"
	"github.com/upb/kudos-portal/repositories"
	"github.com/upb/kudos-portal/repositories/postgres"
	"github.com/upb/kudos-portal/services"
	"github.com/upb/kudos-portal/services/approval"
	"github.com/upb/kudos-portal/services/audit"
	"github.com/upb/kudos-portal/services/usermanagement"
	"github.com/upb/kudos-portal/views"
	"go.uber.org/zap"
)

const (
	auditStopTimeout = 5 * time.Second
	loginThrottleTTL = 10 * time.Minute
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Audit persistence, nil when no database is configured
	RepoFactory  *postgres.RepositoryFactory
	AuditLogs    repositories.AuditRepository
	AuditService *audit.AuditService
	Auditor      approval.Auditor

	// Session
	RealIP         func(http.Handler) http.Handler
	TokenStore     *auth.CookieTokenStore
	Identity       *identity.Client
	Guard          *middleware.Guard
	AuthMiddleware *middleware.AuthMiddleware
	LoginThrottle  *middleware.LoginThrottle
	AuthHandler    *auth.Handler

	// Approval workflow
	Users     *usermanagement.Client
	Approvals *approval.Service

	// Presentation
	Renderer        *views.Renderer
	PageHandler     *handlers.PageHandler
	ApprovalHandler *handlers.ApprovalHandler
	HealthHandler   *handlers.HealthHandler

	stopThrottle context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics(observability.NewRegistry())
	}

	// Initialize approval audit (PostgreSQL when configured, logs otherwise)
	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initSession(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	deps.initApprovals(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Bool("audit_persisted", deps.AuditService != nil),
		zap.Bool("metrics_enabled", deps.Metrics != nil))
	return deps, nil
}

// initAudit opens the audit database and starts the writer pool
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	if !cfg.AuditEnabled() {
		d.Logger.Warn("no audit database configured, approval audit goes to logs only")
		d.Auditor = audit.NewLogAuditor(d.Metrics, d.Logger)
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(ctx, *cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.AuditLogs = factory.NewRepositories().AuditLogs

	svc := audit.NewAuditService(d.AuditLogs, d.Metrics, d.Logger, audit.DefaultConfig())
	if err := svc.Start(); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	d.AuditService = svc
	d.Auditor = svc
	return nil
}

// initSession wires the token store, verifier, guard and login flow
func (d *Dependencies) initSession(cfg *config.Config) error {
	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	d.RealIP = middleware.TrustedRealIP(proxies)

	d.TokenStore = auth.NewCookieTokenStore(cfg.Session.CookieName, cfg.Session.CookieSecure, cfg.Session.CookieMaxAge)
	d.Identity = identity.NewClient(identity.Config{
		BaseURL: cfg.Identity.BaseURL,
		Timeout: cfg.Identity.Timeout,
	}, d.Logger)

	d.Guard = middleware.NewGuard(d.TokenStore, d.Identity, views.PathLogin, d.Metrics, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Guard, d.TokenStore, cfg.Session.LandingPath, d.Metrics, d.Logger)
	if cfg.Session.LoginAttemptsPerMinute > 0 {
		d.LoginThrottle = middleware.NewLoginThrottle(cfg.Session.LoginAttemptsPerMinute, cfg.Session.LoginBurst,
			cfg.Session.LoginAttemptsPerEmail, loginThrottleTTL, views.PathLogin, d.Metrics, d.Logger)
		janitorCtx, cancel := context.WithCancel(context.Background())
		go d.LoginThrottle.Run(janitorCtx)
		d.stopThrottle = cancel
	}

	renderer, err := views.NewRenderer(d.Logger)
	if err != nil {
		return err
	}
	d.Renderer = renderer

	login := services.NewLoginClient(cfg.Identity.BaseURL, cfg.Identity.Timeout)
	d.AuthHandler = auth.NewHandler(d.TokenStore, login, renderer, views.PathLogin, cfg.Session.LandingPath, d.Logger)
	return nil
}

// initApprovals wires the user-management client, workflow and handlers
func (d *Dependencies) initApprovals(cfg *config.Config) {
	d.Users = usermanagement.NewClient(usermanagement.Config{
		BaseURL: cfg.UserService.BaseURL,
		Timeout: cfg.UserService.Timeout,
	}, d.Logger)
	d.Approvals = approval.NewService(d.Users, d.Auditor, d.Metrics, d.Logger)

	// A nil interface keeps the audit trail endpoint disabled without a database
	var reader handlers.AuditReader
	var queue handlers.AuditQueue
	var auditDB *sql.DB
	if d.AuditLogs != nil {
		reader = d.AuditLogs
		auditDB = d.RepoFactory.GetDB().DB
	}
	if d.AuditService != nil {
		queue = d.AuditService
	}

	d.PageHandler = handlers.NewPageHandler(d.Approvals, d.Renderer, d.Logger)
	d.ApprovalHandler = handlers.NewApprovalHandler(d.Approvals, reader, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(auditDB, queue, d.Logger)
}

// Close gracefully shuts down all dependencies. Queued audit events are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopThrottle != nil {
		d.stopThrottle()
	}

	if d.AuditService != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.AuditService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
