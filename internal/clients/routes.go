package clients

import (
	"github.com/go-chi/chi/v5"

	"github.com/firmdesk/firmdesk/internal/rbac"
)

// MountRoutes registers client routes. The router must already carry tenant.Middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(rbac.PermClientsView))
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(rbac.PermClientsManage))
		r.Post("/", h.Create)
		r.Delete("/{id}", h.Delete)
	})
}
