package authz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// Handler exposes the role registry and the caller's own grants.
type Handler struct {
	logger *slog.Logger
	authz  Middleware
}

// NewHandler constructs the authorization introspection handler.
func NewHandler(logger *slog.Logger, m Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, authz: m}
}

// MountRoutes registers the /rbac routes. The router must already carry tenant.Middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.RequireAll(rbac.PermTeamView)).Get("/roles", h.listRoles)
	r.Get("/check", h.check)
}

type meResponse struct {
	UserID       string             `json:"user_id"`
	Role         rbac.Role          `json:"role"`
	DisplayName  string             `json:"display_name"`
	TenantID     string             `json:"tenant_id,omitempty"`
	Permissions  rbac.PermissionSet `json:"permissions"`
	MultiTenancy bool               `json:"multi_tenancy"`
}

// Me reports the principal of the current request and its permissions.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	tc, err := tenant.Require(r.Context())
	if err != nil {
		h.logger.Error("me outside tenant scope", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		UserID:       tc.UserID,
		Role:         tc.Role,
		DisplayName:  tc.Role.DisplayName(),
		TenantID:     tc.TenantID,
		Permissions:  rbac.RolePermissions(tc.Role),
		MultiTenancy: tenant.IsMultiTenancyEnabled(),
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": rbac.Grants()})
}

// check answers, for each ?permission= value, whether the caller holds it. UI code uses it
// to hide or disable actions.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	tc, err := tenant.Require(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	raw := r.URL.Query()["permission"]
	if len(raw) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: permission is required", httpx.ErrValidation))
		return
	}
	decisions := make(map[string]bool, len(raw))
	for _, name := range raw {
		p, ok := rbac.ParsePermission(name)
		if !ok {
			httpx.RespondError(w, fmt.Errorf("%w: unknown permission %q", httpx.ErrValidation, name))
			return
		}
		decisions[p.String()] = rbac.HasPermission(tc.Role, p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":      tc.Role,
		"decisions": decisions,
	})
}
