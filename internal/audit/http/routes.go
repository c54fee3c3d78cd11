package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes mendaftarkan endpoint audit timeline dan ekspor CSV. Router harus sudah
// memakai tenant.Middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(rbac.PermAuditView))
		r.Get("/", h.handleTimeline)
		r.With(limiter).Get("/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if tc, ok := tenant.FromContext(r.Context()); ok && tc.UserID != "" {
		return "user:" + tc.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
