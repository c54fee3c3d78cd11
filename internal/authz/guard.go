package authz

import (
	"net/http"

	"github.com/firmdesk/firmdesk/internal/identity"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// Guard resolves the tenant scope and then requires every listed permission, for routes
// that are not already behind tenant.Middleware.
func Guard(resolver identity.Resolver, opts tenant.Options, m Middleware, perms ...rbac.Permission) func(http.Handler) http.Handler {
	scope := tenant.Middleware(resolver, opts)
	check := m.RequireAll(perms...)
	return func(next http.Handler) http.Handler {
		return scope(check(next))
	}
}
