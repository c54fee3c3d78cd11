package users

import (
	"fmt"
	"time"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
)

// User represents a user account for management.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrSelfRoleChange is returned when a user tries to change their own role.
	ErrSelfRoleChange = fmt.Errorf("users: cannot change own role: %w", httpx.ErrForbidden)
	// ErrRoleEscalation is returned when a non-admin grants or revokes ADMIN.
	ErrRoleEscalation = fmt.Errorf("users: admin role requires an admin: %w", httpx.ErrForbidden)
	// ErrInvalidRole is returned for role values outside the assignable set.
	ErrInvalidRole = fmt.Errorf("users: invalid role: %w", httpx.ErrValidation)
)
