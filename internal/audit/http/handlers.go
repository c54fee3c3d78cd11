package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/firmdesk/firmdesk/internal/audit"
	"github.com/firmdesk/firmdesk/internal/authz"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger   *slog.Logger
	service  TimelineService
	authz    authz.Middleware
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService, m authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		authz:    m,
		validate: newQueryValidator(),
		now:      time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.serverError(w, "load audit timeline", err)
		return
	}
	if result.Rows == nil {
		result.Rows = []audit.TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.serverError(w, "export audit timeline", err)
		return
	}
	body, err := audit.WriteCSV(rows)
	if err != nil {
		h.serverError(w, "encode audit csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(r.Context(), filters)))
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

// exportName menamai berkas ekspor dengan tenant dan rentang tanggal.
func exportName(ctx context.Context, filters audit.TimelineFilters) string {
	scope := "all"
	if tc, ok := tenant.FromContext(ctx); ok && tc.TenantID != "" {
		scope = tc.TenantID
	}
	return fmt.Sprintf("audit-%s-%s-%s.csv", scope, filters.From.Format(dateLayout), filters.To.Format(dateLayout))
}

func (h *Handler) serverError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}
