package views

import (
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/session"
)

// DashboardView is the dashboard variant a session is entitled to
type DashboardView string

const (
	// ViewLoading renders neither variant while the session resolves
	ViewLoading DashboardView = "loading"
	ViewAdmin   DashboardView = "admin"
	// ViewLead is the least-privileged variant and the default
	ViewLead DashboardView = "lead"
)

// SelectView picks the dashboard variant. Unknown or missing roles get the
// lead variant, never the admin one.
func SelectView(state session.State) DashboardView {
	if state.IsLoading() {
		return ViewLoading
	}
	role, _ := state.Role()
	return models.SwitchRole(role, ViewAdmin, ViewLead, ViewLead)
}

// Entitlements lists the optional areas a session may reach
type Entitlements struct {
	Analytics bool `json:"analytics"`
	Approvals bool `json:"approvals"`
}

// EntitlementsFor derives entitlements from the verified role only
func EntitlementsFor(state session.State) Entitlements {
	role, ok := state.Role()
	if !ok {
		return Entitlements{}
	}
	return models.SwitchRole(role,
		Entitlements{Analytics: true, Approvals: true},
		Entitlements{Analytics: true},
		Entitlements{},
	)
}
