package clients

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/firmdesk/firmdesk/internal/authz"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/shared"
)

// IdempotencyHeader carries the client supplied key for POST requests.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, m authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: m, validator: validator.New()}
}

type listResponse struct {
	Clients    []Client          `json:"clients"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListClientsRequest{}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		req.IsActive = &active
	}
	if search := q.Get("search"); search != "" {
		req.Search = &search
	}
	req.Page, _ = strconv.Atoi(q.Get("page"))
	req.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	clients, pagination, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list clients failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Clients: clients, Pagination: pagination})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("get client failed", slog.String("id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	client, err := h.service.Create(r.Context(), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.logger.Warn("create client failed", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+client.ID)
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("delete client failed", slog.String("id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
