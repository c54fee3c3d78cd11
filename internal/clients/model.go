package clients

import (
	"fmt"
	"time"

	"github.com/firmdesk/firmdesk/internal/platform/httpx"
)

// Client is a customer of the firm.
type Client struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	TaxID     *string   `json:"tax_id,omitempty"`
	Country   string    `json:"country"`
	Notes     *string   `json:"notes,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound      = fmt.Errorf("client not found: %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("client code already exists: %w", httpx.ErrDuplicate)
	ErrReplayed      = fmt.Errorf("request already processed: %w", httpx.ErrDuplicate)
)
