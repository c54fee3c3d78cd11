package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/shared"
)

// AuditPublisher records audit events off the request path.
type AuditPublisher interface {
	Publish(ctx context.Context, log shared.AuditLog)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	audit          AuditPublisher
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, audit AuditPublisher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		audit:          audit,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginUser struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Role     rbac.Role `json:"role"`
	TenantID string    `json:"tenant_id,omitempty"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      loginUser `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Field()+" is invalid")
			return
		}
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	token, expiresAt, err := h.service.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess, err := h.sessionManager.Load(r.Context(), r)
	if err != nil {
		h.logger.Error("load session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.sessionManager.Rotate(sess)
	sess.SetUser(user.ID)
	if err := h.sessionManager.Commit(r.Context(), w, sess); err != nil {
		h.logger.Error("commit session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, time.Now().Add(h.sessionManager.TTL()), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	if h.audit != nil {
		h.audit.Publish(r.Context(), shared.AuditLog{
			ActorID:  user.ID,
			TenantID: user.TenantID,
			Action:   shared.AuditActionLogin,
			Entity:   "user",
			EntityID: user.ID,
			Meta:     map[string]any{"ip": r.RemoteAddr},
		})
	}

	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: loginUser{
			ID:       user.ID,
			Email:    user.Email,
			Role:     user.Role,
			TenantID: user.TenantID,
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionManager.Lookup(r.Context(), r)
	if err != nil {
		h.logger.Warn("lookup session", slog.Any("error", err))
	}
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
		if err := h.sessionManager.Commit(r.Context(), w, sess); err != nil {
			h.logger.Error("destroy session", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
