package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/firmdesk/firmdesk/internal/audit/http"
	"github.com/firmdesk/firmdesk/internal/auth"
	"github.com/firmdesk/firmdesk/internal/authz"
	"github.com/firmdesk/firmdesk/internal/clients"
	"github.com/firmdesk/firmdesk/internal/identity"
	"github.com/firmdesk/firmdesk/internal/observability"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
	"github.com/firmdesk/firmdesk/internal/users"
	"github.com/firmdesk/firmdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Resolver       identity.Resolver
	Authz          authz.Middleware
	AuthHandler    *auth.Handler
	AuthzHandler   *authz.Handler
	UsersHandler   *users.Handler
	ClientsHandler *clients.Handler
	AuditHandler   *audithttp.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with firmdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	scopeOpts := tenant.Options{Logger: params.Logger}
	if params.Config != nil {
		scopeOpts.ResolveTimeout = params.Config.IdentityTimeout
	}

	// Every route below needs an authenticated principal and a tenant scope.
	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(params.Resolver, scopeOpts))

		if params.AuthzHandler != nil {
			r.Get("/me", params.AuthzHandler.Me)
			r.Route("/rbac", params.AuthzHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.ClientsHandler != nil {
			r.Route("/clients", params.ClientsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(authz.Guard(params.Resolver, scopeOpts, params.Authz, rbac.PermSettingsManage))
			params.JobHandler.MountRoutes(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	return r
}
