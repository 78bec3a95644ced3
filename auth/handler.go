package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/services"
	"github.com/upb/kudos-portal/utils"
	"github.com/upb/kudos-portal/views"
	"go.uber.org/zap"
)

// LoginService exchanges credentials for a session token
type LoginService interface {
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
}

// PageRenderer renders a named page template
type PageRenderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, name string, page views.Page)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Handler serves the login form and the login/logout actions
type Handler struct {
	store       TokenStore
	login       LoginService
	renderer    PageRenderer
	loginPath   string
	landingPath string
	logger      *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(store TokenStore, login LoginService, renderer PageRenderer, loginPath, landingPath string, logger *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		login:       login,
		renderer:    renderer,
		loginPath:   loginPath,
		landingPath: landingPath,
		logger:      logger,
	}
}

// HandleLoginForm renders the empty login page
func (h *Handler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, views.PageLogin, views.Page{Title: "Log in"})
}

// HandleLogin validates the form, logs in at the backend and stores the token.
// Failures re-render the form with the email kept.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, "", "Invalid form submission")
		return
	}

	form := loginForm{
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
	}
	if err := utils.ValidateStruct(&form); err != nil {
		h.fail(w, r, http.StatusBadRequest, form.Email, validationMessage(err))
		return
	}

	logger := observability.WithRequest(r.Context(), h.logger)

	result, err := h.login.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		switch {
		case services.IsValidationError(err):
			h.fail(w, r, http.StatusBadRequest, form.Email, messageOf(err))
		case services.IsUnauthorizedError(err):
			logger.Info("login rejected", zap.String("email", form.Email))
			h.fail(w, r, http.StatusUnauthorized, form.Email, services.ErrInvalidCredentials.Message)
		case services.IsForbiddenError(err):
			logger.Info("login forbidden", zap.String("email", form.Email), zap.Error(err))
			h.fail(w, r, http.StatusForbidden, form.Email, messageOf(err))
		default:
			logger.Error("login failed", zap.Error(err))
			h.fail(w, r, http.StatusBadGateway, form.Email, "Login is unavailable right now, please try again")
		}
		return
	}

	h.store.SetToken(w, result.Token, time.Time{})
	if result.User != nil {
		logger.Info("user logged in", zap.String("user_id", result.User.ID))
	}
	utils.Redirect(w, r, h.landingPath, "")
}

// HandleLogout clears the token and returns to the login page
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.store.ClearToken(w)
	utils.Redirect(w, r, h.loginPath, "You have been logged out")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, email, message string) {
	h.renderer.Render(w, r, status, views.PageLogin, views.Page{
		Title: "Log in",
		Error: message,
		Data:  views.LoginForm{Email: email},
	})
}

func validationMessage(err error) string {
	fields := utils.GetValidationFields(err)
	if len(fields) == 0 {
		return "Invalid form submission"
	}
	msgs := make([]string, 0, len(fields))
	for _, msg := range fields {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

func messageOf(err error) string {
	var de *services.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
