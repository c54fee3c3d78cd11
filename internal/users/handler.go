package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/firmdesk/firmdesk/internal/authz"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, m authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: m, validator: validator.New()}
}

// MountRoutes registers user routes. The router must already carry tenant.Middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(rbac.PermUsersView))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(rbac.PermUsersManage))
		r.Put("/{id}/role", h.changeRole)
	})
}

type listResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	users, pagination, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Users: users, Pagination: pagination})
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, ErrInvalidRole)
		return
	}
	user, err := h.service.ChangeRole(r.Context(), chi.URLParam(r, "id"), rbac.ParseRole(req.Role))
	if err != nil {
		h.logger.Warn("change role failed", slog.String("target", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
