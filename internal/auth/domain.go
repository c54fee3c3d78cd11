package auth

import (
	"time"

	"github.com/firmdesk/firmdesk/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         rbac.Role
	TenantID     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
