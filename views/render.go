package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/session"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names, one per template file besides the layout
const (
	PageLogin     = "login"
	PageKudosWall = "kudos_wall"
	PageDashboard = "dashboard"
	PageSendKudos = "kudos_new"
	PageAnalytics = "analytics"
	PageApprovals = "approvals"
	PageError     = "error"
)

var pageNames = []string{
	PageLogin, PageKudosWall, PageDashboard, PageSendKudos,
	PageAnalytics, PageApprovals, PageError,
}

// Page is the data every template receives
type Page struct {
	Title   string
	Session session.State
	Nav     []NavLink
	View    DashboardView
	Flash   string
	Error   string
	Data    interface{}
}

// LoginForm is re-rendered after a failed login so the email is kept
type LoginForm struct {
	Email string
}

// Paths returns the page paths for links and form actions
func (p Page) Paths() SitePaths {
	return sitePaths
}

// Identity returns the verified identity, or nil
func (p Page) Identity() *models.Identity {
	if !p.Session.IsAuthenticated() {
		return nil
	}
	return p.Session.Identity
}

// Renderer executes the embedded page templates
type Renderer struct {
	pages  map[string]*template.Template
	logger *zap.Logger
}

// NewRenderer parses every page together with the shared layout
func NewRenderer(logger *zap.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"roles":   func() []models.Role { return models.Roles },
		"initial": initial,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Render writes page name. Session and navigation are filled from the request
// context so handlers cannot render a page with stale identity.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	tmpl, ok := rd.pages[name]
	if !ok {
		rd.logger.Error("unknown page template", zap.String("page", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	page.Session = session.FromContext(r.Context())
	page.Nav = NavLinks(page.Session, r.URL.Path)
	// Flash messages only come from the server-set cookie, never the URL
	if flash := utils.PopFlash(w, r); page.Flash == "" {
		page.Flash = flash
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		rd.logger.Error("failed to render page",
			zap.String("page", name),
			zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func initial(id *models.Identity) string {
	name := strings.TrimSpace(id.DisplayName())
	if name == "" {
		return "?"
	}
	return strings.ToUpper(string([]rune(name)[:1]))
}
