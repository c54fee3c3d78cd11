package users

import (
	"context"
	"log/slog"

	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/shared"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter tenant.Filter, limit, offset int) ([]User, int, error)
	UpdateRole(ctx context.Context, filter tenant.Filter, id string, role rbac.Role, check func(current User) error) (User, error)
}

// Invalidator drops cached identities after a role change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// AuditPublisher records audit events off the request path.
type AuditPublisher interface {
	Publish(ctx context.Context, log shared.AuditLog)
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	identities Invalidator
	audit      AuditPublisher
	logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, identities Invalidator, audit AuditPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, identities: identities, audit: audit, logger: logger}
}

// ListUsers returns one page of users in the caller's tenant.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, tc.Filter(), p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// ChangeRole assigns role to the user with id. Users cannot change their own role, and only
// admins may grant or revoke ADMIN.
func (s *Service) ChangeRole(ctx context.Context, id string, role rbac.Role) (User, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}
	if id == tc.UserID {
		return User{}, ErrSelfRoleChange
	}

	var previous rbac.Role
	updated, err := s.repo.UpdateRole(ctx, tc.Filter(), id, role, func(current User) error {
		previous = current.Role
		if (role == rbac.RoleAdmin || current.Role == rbac.RoleAdmin) && tc.Role != rbac.RoleAdmin {
			return ErrRoleEscalation
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}

	if s.identities != nil {
		if err := s.identities.Invalidate(ctx, id); err != nil {
			s.logger.Warn("invalidate identity cache", slog.String("user_id", id), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		s.audit.Publish(ctx, shared.AuditLog{
			ActorID:  tc.UserID,
			TenantID: tc.TenantID,
			Action:   shared.AuditActionRoleChanged,
			Entity:   "user",
			EntityID: id,
			Meta:     map[string]any{"from": previous.String(), "to": role.String()},
		})
	}
	return updated, nil
}
