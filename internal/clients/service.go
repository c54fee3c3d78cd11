package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/shared"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// idempotencyModule namespaces client keys in the idempotency store.
const idempotencyModule = "clients"

// Idempotency claims and releases request keys.
type Idempotency interface {
	Claim(ctx context.Context, key shared.IdempotencyKey) error
	Release(ctx context.Context, key shared.IdempotencyKey) error
}

// AuditPublisher records audit events off the request path.
type AuditPublisher interface {
	Publish(ctx context.Context, log shared.AuditLog)
}

type Service struct {
	repo   Repository
	idem   Idempotency
	audit  AuditPublisher
	logger *slog.Logger
}

func NewService(repo Repository, idem Idempotency, audit AuditPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idem: idem, audit: audit, logger: logger}
}

// Create stores a client owned by the caller's tenant. A non-empty key makes the call
// idempotent: a replayed key fails with ErrReplayed.
func (s *Service) Create(ctx context.Context, req CreateClientRequest, key string) (*Client, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}

	idemKey := shared.IdempotencyKey{TenantID: tc.TenantID, Module: idempotencyModule, Key: key}
	claimed := key != "" && s.idem != nil
	if claimed {
		if err := s.idem.Claim(ctx, idemKey); err != nil {
			switch {
			case errors.Is(err, shared.ErrIdempotencyConflict):
				return nil, ErrReplayed
			case errors.Is(err, shared.ErrInvalidIdempotencyKey):
				return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
			}
			return nil, err
		}
	}

	created, err := s.repo.Create(ctx, Client{
		ID:        uuid.NewString(),
		TenantID:  tc.TenantID,
		Code:      req.Code,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		TaxID:     req.TaxID,
		Country:   req.Country,
		Notes:     req.Notes,
		IsActive:  true,
		CreatedBy: tc.UserID,
	})
	if err != nil {
		if claimed {
			if derr := s.idem.Release(context.WithoutCancel(ctx), idemKey); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create client: %w", err)
	}

	s.publish(ctx, tc, shared.AuditActionClientCreate, created.ID, map[string]any{"code": created.Code})
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Client, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, tc.Filter(), id)
}

func (s *Service) List(ctx context.Context, req ListClientsRequest) ([]Client, shared.Pagination, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(req.Page, req.PerPage, 0)
	clients, total, err := s.repo.List(ctx, tc.Filter(), req, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return clients, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Delete removes a client of the caller's tenant. Clients of other tenants are reported
// as not found.
func (s *Service) Delete(ctx context.Context, id string) error {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tc.Filter(), id); err != nil {
		return err
	}
	s.publish(ctx, tc, shared.AuditActionClientDelete, id, nil)
	return nil
}

func (s *Service) publish(ctx context.Context, tc tenant.Context, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(ctx, shared.AuditLog{
		ActorID:  tc.UserID,
		TenantID: tc.TenantID,
		Action:   action,
		Entity:   "client",
		EntityID: id,
		Meta:     meta,
	})
}
