package views

import (
	"strings"

	"github.com/upb/kudos-portal/session"
)

// Paths of the portal's pages
const (
	PathLogin     = "/login"
	PathLogout    = "/logout"
	PathKudosWall = "/kudos-wall"
	PathDashboard = "/dashboard"
	PathSendKudos = "/kudos/new"
	PathAnalytics = "/analytics"
	PathApprovals = "/approvals"
)

// LandingPaths are the pages every role may open, so any of them can follow login
var LandingPaths = []string{PathKudosWall, PathDashboard, PathSendKudos}

// SitePaths exposes the page paths to templates
type SitePaths struct {
	Login     string
	Logout    string
	KudosWall string
	Dashboard string
	SendKudos string
	Analytics string
	Approvals string
}

var sitePaths = SitePaths{
	Login:     PathLogin,
	Logout:    PathLogout,
	KudosWall: PathKudosWall,
	Dashboard: PathDashboard,
	SendKudos: PathSendKudos,
	Analytics: PathAnalytics,
	Approvals: PathApprovals,
}

// NavLink is one navigation entry
type NavLink struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Active bool   `json:"active"`
	// Post marks links that must be submitted as a form
	Post bool `json:"post,omitempty"`
}

// NavLinks builds the navigation for the session. Unverified and loading
// sessions only see the login link.
func NavLinks(state session.State, currentPath string) []NavLink {
	if !state.IsAuthenticated() {
		return markActive([]NavLink{{Label: "Log in", Path: PathLogin}}, currentPath)
	}

	links := []NavLink{
		{Label: "Kudos Wall", Path: PathKudosWall},
		{Label: "Dashboard", Path: PathDashboard},
		{Label: "Send Kudos", Path: PathSendKudos},
	}

	ent := EntitlementsFor(state)
	if ent.Analytics {
		links = append(links, NavLink{Label: "Analytics", Path: PathAnalytics})
	}
	if ent.Approvals {
		links = append(links, NavLink{Label: "Approvals", Path: PathApprovals})
	}

	links = append(links, NavLink{Label: "Log out", Path: PathLogout, Post: true})
	return markActive(links, currentPath)
}

func markActive(links []NavLink, currentPath string) []NavLink {
	for i := range links {
		p := links[i].Path
		links[i].Active = currentPath == p || strings.HasPrefix(currentPath, p+"/")
	}
	return links
}
