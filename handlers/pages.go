package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/session"
	"github.com/upb/kudos-portal/utils"
	"github.com/upb/kudos-portal/views"
	"go.uber.org/zap"
)

// PageRenderer renders a named page template
type PageRenderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, name string, page views.Page)
}

// PageHandler serves the guarded server-rendered pages
type PageHandler struct {
	approvals ApprovalService
	renderer  PageRenderer
	logger    *zap.Logger
}

// NewPageHandler creates a new PageHandler
func NewPageHandler(approvals ApprovalService, renderer PageRenderer, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		approvals: approvals,
		renderer:  renderer,
		logger:    logger,
	}
}

// HandleKudosWall handles GET /kudos-wall
func (h *PageHandler) HandleKudosWall(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, views.PageKudosWall, views.Page{Title: "Kudos Wall"})
}

// HandleDashboard handles GET /dashboard. The variant is chosen from the
// verified role only.
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	state := session.FromContext(r.Context())
	h.renderer.Render(w, r, http.StatusOK, views.PageDashboard, views.Page{
		Title: "Dashboard",
		View:  views.SelectView(state),
	})
}

// HandleSendKudos handles GET /kudos/new
func (h *PageHandler) HandleSendKudos(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, views.PageSendKudos, views.Page{Title: "Send Kudos"})
}

// HandleAnalytics handles GET /analytics
func (h *PageHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, views.PageAnalytics, views.Page{Title: "Analytics"})
}

// HandleApprovals handles GET /approvals. The list is fetched on every render.
func (h *PageHandler) HandleApprovals(w http.ResponseWriter, r *http.Request) {
	page := views.Page{Title: "Approvals"}

	pending, err := h.approvals.ListPending(r.Context())
	if err != nil {
		page.Error = UserMessage(err)
		page.Data = []*models.Identity{}
		h.renderer.Render(w, r, StatusForError(err), views.PageApprovals, page)
		return
	}

	page.Data = pending
	h.renderer.Render(w, r, http.StatusOK, views.PageApprovals, page)
}

// HandleApprove handles POST /approvals/{id}/approve
func (h *PageHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	_, err := h.approvals.Approve(r.Context(), chi.URLParam(r, "id"))
	h.backToApprovals(w, r, err, "User approved")
}

// HandleApproveWithRole handles POST /approvals/{id}/approve-with-role
func (h *PageHandler) HandleApproveWithRole(w http.ResponseWriter, r *http.Request) {
	var role *models.Role
	if err := r.ParseForm(); err == nil {
		if value := r.PostForm.Get("role"); strings.TrimSpace(value) != "" {
			parsed, _ := models.ParseRole(value)
			role = &parsed
		}
	}

	_, err := h.approvals.ApproveWithRole(r.Context(), chi.URLParam(r, "id"), role)
	h.backToApprovals(w, r, err, "User approved with role")
}

// HandleReject handles POST /approvals/{id}/reject
func (h *PageHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	_, err := h.approvals.Reject(r.Context(), chi.URLParam(r, "id"))
	h.backToApprovals(w, r, err, "User rejected")
}

// HandleNotFound renders the error page for unknown paths
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusNotFound, views.PageError, views.Page{
		Title: "Not found",
		Error: "That page does not exist",
	})
}

// backToApprovals redirects to the list so it is re-fetched after every
// mutation, carrying the outcome as a flash message
func (h *PageHandler) backToApprovals(w http.ResponseWriter, r *http.Request, err error, success string) {
	if err != nil {
		observability.WithRequest(r.Context(), h.logger).Info("approval action failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		utils.Redirect(w, r, views.PathApprovals, UserMessage(err))
		return
	}
	utils.Redirect(w, r, views.PathApprovals, success)
}
