package tenant

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// Column is the tenant discriminator column of tenant-owned tables.
const Column = "tenant_id"

// Filter restricts queries to a single tenant. The zero value is the empty filter and
// matches every row.
type Filter struct {
	tenantID string
}

// IsEmpty reports whether the filter matches all rows.
func (f Filter) IsEmpty() bool {
	return f.tenantID == ""
}

// TenantID returns the tenant the filter is pinned to.
func (f Filter) TenantID() (string, bool) {
	return f.tenantID, f.tenantID != ""
}

// Map renders the filter as a field map, either empty or {"tenant_id": id}.
func (f Filter) Map() map[string]any {
	if f.IsEmpty() {
		return map[string]any{}
	}
	return map[string]any{Column: f.tenantID}
}

// Where renders the filter as a SQL predicate on column using the next positional
// placeholder after args. An empty filter returns an empty clause and args unchanged.
func (f Filter) Where(column string, args []any) (string, []any) {
	if f.IsEmpty() {
		return "", args
	}
	args = append(args, f.tenantID)
	return fmt.Sprintf("%s = $%d", column, len(args)), args
}

// Scoping is the process-wide multi-tenancy mode.
type Scoping struct {
	Enabled bool
}

// Filter derives the data filter for tenantID. Scoping is applied only when multi-tenancy
// is enabled and a tenant is known.
func (s Scoping) Filter(tenantID string) Filter {
	if !s.Enabled || tenantID == "" {
		return Filter{}
	}
	return Filter{tenantID: tenantID}
}

type scopingConfig struct {
	MultiTenancyEnabled bool `envconfig:"MULTI_TENANCY_ENABLED" default:"false"`
}

var (
	processOnce    sync.Once
	processScoping Scoping
)

// Configure fixes the process scoping mode. Only the first call, or the first call to
// IsMultiTenancyEnabled, takes effect; Configure reports whether this call did.
func Configure(s Scoping) bool {
	applied := false
	processOnce.Do(func() {
		processScoping = s
		applied = true
	})
	return applied
}

// IsMultiTenancyEnabled reports the process scoping mode. Unless Configure ran first, the
// value is read once from MULTI_TENANCY_ENABLED; a malformed value disables scoping.
func IsMultiTenancyEnabled() bool {
	return ProcessScoping().Enabled
}

// ProcessScoping returns the process scoping mode.
func ProcessScoping() Scoping {
	processOnce.Do(func() {
		var cfg scopingConfig
		if err := envconfig.Process("", &cfg); err != nil {
			slog.Default().Warn("invalid multi-tenancy flag, scoping disabled", slog.Any("error", err))
			cfg.MultiTenancyEnabled = false
		}
		processScoping = Scoping{Enabled: cfg.MultiTenancyEnabled}
	})
	return processScoping
}

// FilterFor derives the data filter for tenantID under the process scoping mode.
func FilterFor(tenantID string) Filter {
	return ProcessScoping().Filter(tenantID)
}
