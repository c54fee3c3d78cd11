package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
)

// QueueInspector reads queue counters. *asynq.Inspector implements it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes queue health over HTTP. Callers mount it behind an authorization guard.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs handler. A nil inspector reports empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Failed    int    `json:"failed"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Queues []queueHealth `json:"queues"`
}

// health reports "degraded" once any task was archived, which for the audit queue means
// lost audit records.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues := []string{QueueAudit, QueueDefault}
	resp := healthResponse{Status: "ok", Queues: make([]queueHealth, 0, len(queues))}
	for _, q := range queues {
		if h.inspector == nil {
			resp.Queues = append(resp.Queues, queueHealth{Queue: q})
			continue
		}
		info, err := h.inspector.GetQueueInfo(q)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				resp.Queues = append(resp.Queues, queueHealth{Queue: q})
				continue
			}
			h.logger.Warn("jobs health", slog.String("queue", q), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
			return
		}
		if info.Archived > 0 {
			resp.Status = "degraded"
		}
		resp.Queues = append(resp.Queues, queueHealth{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Failed:    info.Failed,
			LatencyMS: info.Latency.Milliseconds(),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
