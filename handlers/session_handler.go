package handlers

import (
	"net/http"

	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/session"
	"github.com/upb/kudos-portal/utils"
	"github.com/upb/kudos-portal/views"
)

// SessionResponse describes the verified caller to API clients
type SessionResponse struct {
	Identity     *models.Identity    `json:"identity"`
	View         views.DashboardView `json:"view"`
	Nav          []views.NavLink     `json:"nav"`
	Entitlements views.Entitlements  `json:"entitlements"`
}

// HandleSession handles GET /api/v1/session. It must run behind the API guard,
// so the identity always comes from the verification call of this request.
func HandleSession(w http.ResponseWriter, r *http.Request) {
	state := session.FromContext(r.Context())
	if !state.IsAuthenticated() {
		_ = utils.WriteUnauthorized(w, "Please log in")
		return
	}

	_ = utils.WriteOK(w, SessionResponse{
		Identity:     state.Identity,
		View:         views.SelectView(state),
		Nav:          views.NavLinks(state, r.URL.Query().Get("path")),
		Entitlements: views.EntitlementsFor(state),
	})
}
