package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/firmdesk/firmdesk/internal/identity"
	"github.com/firmdesk/firmdesk/internal/shared"
)

// dummyHash keeps the cost of a failed lookup close to a failed password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("firmdesk-timing-pad"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	issuer *identity.Issuer
}

// NewService constructs a new Service.
func NewService(repo Repository, issuer *identity.Issuer) *Service {
	return &Service{repo: repo, issuer: issuer}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive || !user.Role.Valid() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs a bearer token for user.
func (s *Service) IssueToken(user *User) (string, time.Time, error) {
	return s.issuer.Issue(identity.Identity{UserID: user.ID, Role: user.Role, TenantID: user.TenantID})
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
