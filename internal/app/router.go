package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/audit"
	"github.com/brodesk/brodesk/internal/categories"
	"github.com/brodesk/brodesk/internal/complaints"
	"github.com/brodesk/brodesk/internal/notifications"
	"github.com/brodesk/brodesk/internal/observability"
	"github.com/brodesk/brodesk/internal/platform/httpx"
	"github.com/brodesk/brodesk/internal/rbac"
	"github.com/brodesk/brodesk/internal/shared"
	"github.com/brodesk/brodesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	SessionManager       *shared.SessionManager
	CSRFManager          *shared.CSRFManager
	RBACMiddleware       rbac.Middleware
	AuthHandler          *accounts.AuthHandler
	AdminHandler         *accounts.AdminHandler
	AuditHandler         *audit.Handler
	CategoriesHandler    *categories.Handler
	ComplaintsHandler    *complaints.Handler
	NotificationsHandler *notifications.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with BroDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)
	r.Use(params.RBACMiddleware.Authenticate)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get(rbac.LandingPath, func(w http.ResponseWriter, r *http.Request) {
		target := rbac.EntryPath
		if p := shared.PrincipalFromContext(r.Context()); p.Authenticated() {
			target = rbac.HomePath(p.Role)
		}
		if httpx.WantsHTML(r) {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"redirect": target})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireRoles())
		r.Route("/categories", params.CategoriesHandler.MountRoutes)
		r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		r.Route("/complaints", params.ComplaintsHandler.MountRoutes)
	})

	r.Route("/student", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireRoles(shared.RoleStudent))
		params.ComplaintsHandler.MountStudentRoutes(r)
	})

	r.Route("/staff", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireRoles(shared.RoleStaff))
		params.ComplaintsHandler.MountStaffRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireRoles(shared.RoleAdmin))
		params.AdminHandler.MountRoutes(r)
		params.ComplaintsHandler.MountAdminRoutes(r)
		r.Route("/categories", params.CategoriesHandler.MountAdminRoutes)
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
