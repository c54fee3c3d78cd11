// Package authz gates HTTP handlers on the permissions of the request principal.
package authz

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// Decision outcomes reported to the DecisionRecorder.
const (
	OutcomeAllowed         = "allowed"
	OutcomeDenied          = "denied"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeNoContext       = "no_context"
)

// Guard kinds reported to the DecisionRecorder.
const (
	KindAll  = "all"
	KindAny  = "any"
	KindRole = "role"
)

// DecisionRecorder observes authorization decisions.
type DecisionRecorder interface {
	ObserveDecision(kind, outcome string)
}

// DenialSink receives denied requests for the audit trail. Implementations must not block.
type DenialSink interface {
	RecordDenial(ctx context.Context, d Denial)
}

// Denial describes a request rejected by a guard.
type Denial struct {
	UserID   string            `json:"user_id"`
	Role     rbac.Role         `json:"role"`
	TenantID string            `json:"tenant_id,omitempty"`
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Kind     string            `json:"kind"`
	Required []rbac.Permission `json:"required,omitempty"`
	Roles    []rbac.Role       `json:"roles,omitempty"`
	At       time.Time         `json:"at"`
}

// Middleware wires authorization guards for HTTP handlers. Guards read the tenant scope,
// so they must be mounted after tenant.Middleware.
type Middleware struct {
	Logger  *slog.Logger
	Metrics DecisionRecorder
	Denials DenialSink
}

// RequireAll ensures the current user holds every listed permission.
func (m Middleware) RequireAll(perms ...rbac.Permission) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	if len(required) == 0 {
		m.logger().Warn("authorization guard mounted without permissions", slog.String("kind", KindAll))
	}
	return m.guard(KindAll, func(tc tenant.Context) bool {
		return rbac.CheckPermissions(tc.Role, required...)
	}, Denial{Required: required})
}

// RequireAny ensures the current user holds at least one of the listed permissions.
func (m Middleware) RequireAny(perms ...rbac.Permission) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	if len(required) == 0 {
		m.logger().Warn("authorization guard mounted without permissions", slog.String("kind", KindAny))
	}
	return m.guard(KindAny, func(tc tenant.Context) bool {
		return rbac.CheckAnyPermission(tc.Role, required...)
	}, Denial{Required: required})
}

// RequireRole ensures the current user has one of the listed roles.
func (m Middleware) RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	allowed := append([]rbac.Role(nil), roles...)
	return m.guard(KindRole, func(tc tenant.Context) bool {
		return rbac.HasRole(tc.Role, allowed...)
	}, Denial{Roles: allowed})
}

func (m Middleware) guard(kind string, allow func(tenant.Context) bool, template Denial) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := tenant.Require(r.Context())
			if err != nil {
				m.logger().Error("authorization guard outside tenant scope",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				m.observe(kind, OutcomeNoContext)
				httpx.RespondError(w, err)
				return
			}
			if !tc.Authenticated() {
				m.observe(kind, OutcomeUnauthenticated)
				httpx.Unauthorized(w)
				return
			}
			if !allow(tc) {
				m.observe(kind, OutcomeDenied)
				m.deny(r, tc, kind, template)
				httpx.Forbidden(w)
				return
			}
			m.observe(kind, OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(r *http.Request, tc tenant.Context, kind string, template Denial) {
	m.logger().Info("authorization denied",
		slog.String("user_id", tc.UserID),
		slog.String("role", tc.Role.String()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
	if m.Denials == nil {
		return
	}
	d := template
	d.UserID = tc.UserID
	d.Role = tc.Role
	d.TenantID = tc.TenantID
	d.Method = r.Method
	d.Path = r.URL.Path
	d.Kind = kind
	d.At = time.Now().UTC()
	m.Denials.RecordDenial(r.Context(), d)
}

func (m Middleware) observe(kind, outcome string) {
	if m.Metrics != nil {
		m.Metrics.ObserveDecision(kind, outcome)
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// normalizePermissions drops duplicates while keeping order. Undefined permissions are
// kept so that a guard listing only undefined values still fails closed.
func normalizePermissions(perms []rbac.Permission) []rbac.Permission {
	seen := make(map[rbac.Permission]struct{}, len(perms))
	out := make([]rbac.Permission, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
