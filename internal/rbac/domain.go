package rbac

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownRole is returned when decoding a role tag outside the closed set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// ErrUnknownPermission is returned when decoding a permission tag outside the closed set.
var ErrUnknownPermission = errors.New("rbac: unknown permission")

// Role identifies the authorization class of a user. The zero value is RoleUnknown,
// which holds no permissions.
type Role uint8

// Roles known to the registry.
const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleTeamLead
	RoleTeamMember
	RoleStaff
	RoleClient
)

var roleNames = [...]string{
	RoleUnknown:    "UNKNOWN",
	RoleAdmin:      "ADMIN",
	RoleTeamLead:   "TEAM_LEAD",
	RoleTeamMember: "TEAM_MEMBER",
	RoleStaff:      "STAFF",
	RoleClient:     "CLIENT",
}

// AllRoles lists every assignable role in declaration order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleTeamLead, RoleTeamMember, RoleStaff, RoleClient}
}

// ParseRole decodes a role tag from an untyped source such as a session payload or
// token claim. Unrecognised values decode to RoleUnknown.
func ParseRole(raw string) Role {
	name := normalizeTag(raw)
	if name == "" {
		return RoleUnknown
	}
	for _, r := range AllRoles() {
		if roleNames[r] == name {
			return r
		}
	}
	return RoleUnknown
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r > RoleUnknown && int(r) < len(roleNames)
}

// String returns the wire name of the role.
func (r Role) String() string {
	if !r.Valid() {
		return roleNames[RoleUnknown]
	}
	return roleNames[r]
}

// DisplayName returns a human readable label, e.g. "Team Lead".
func (r Role) DisplayName() string {
	words := strings.ReplaceAll(strings.ToLower(r.String()), "_", " ")
	return cases.Title(language.English).String(words)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown tags leave the receiver
// set to RoleUnknown and return ErrUnknownRole.
func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	if *r == RoleUnknown {
		return ErrUnknownRole
	}
	return nil
}

// Permission identifies a single guardable capability.
type Permission uint8

// Permissions known to the registry. The set is closed; adding one requires a code change.
const (
	PermServicesView Permission = iota + 1
	PermServicesManage
	PermServiceRequestsView
	PermServiceRequestsCreate
	PermServiceRequestsUpdate
	PermServiceRequestsDelete
	PermClientsView
	PermClientsManage
	PermBookingsView
	PermBookingsManage
	PermInvoicesView
	PermInvoicesManage
	PermTeamView
	PermTeamManage
	PermUsersView
	PermUsersManage
	PermAnalyticsView
	PermSettingsManage
	PermAuditView

	permissionCount
)

var permissionNames = [...]string{
	PermServicesView:          "SERVICES_VIEW",
	PermServicesManage:        "SERVICES_MANAGE",
	PermServiceRequestsView:   "SERVICE_REQUESTS_VIEW",
	PermServiceRequestsCreate: "SERVICE_REQUESTS_CREATE",
	PermServiceRequestsUpdate: "SERVICE_REQUESTS_UPDATE",
	PermServiceRequestsDelete: "SERVICE_REQUESTS_DELETE",
	PermClientsView:           "CLIENTS_VIEW",
	PermClientsManage:         "CLIENTS_MANAGE",
	PermBookingsView:          "BOOKINGS_VIEW",
	PermBookingsManage:        "BOOKINGS_MANAGE",
	PermInvoicesView:          "INVOICES_VIEW",
	PermInvoicesManage:        "INVOICES_MANAGE",
	PermTeamView:              "TEAM_VIEW",
	PermTeamManage:            "TEAM_MANAGE",
	PermUsersView:             "USERS_VIEW",
	PermUsersManage:           "USERS_MANAGE",
	PermAnalyticsView:         "ANALYTICS_VIEW",
	PermSettingsManage:        "SETTINGS_MANAGE",
	PermAuditView:             "AUDIT_VIEW",
}

// AllPermissions lists every defined permission in declaration order.
func AllPermissions() []Permission {
	perms := make([]Permission, 0, permissionCount-1)
	for p := PermServicesView; p < permissionCount; p++ {
		perms = append(perms, p)
	}
	return perms
}

// ParsePermission decodes a permission tag.
func ParsePermission(raw string) (Permission, bool) {
	name := normalizeTag(raw)
	for _, p := range AllPermissions() {
		if permissionNames[p] == name {
			return p, true
		}
	}
	return 0, false
}

// Valid reports whether p is a defined permission.
func (p Permission) Valid() bool {
	return p > 0 && p < permissionCount
}

// String returns the wire name of the permission.
func (p Permission) String() string {
	if !p.Valid() {
		return "INVALID"
	}
	return permissionNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, ErrUnknownPermission
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, ok := ParsePermission(string(text))
	if !ok {
		return ErrUnknownPermission
	}
	*p = parsed
	return nil
}

func normalizeTag(raw string) string {
	raw = strings.TrimSpace(strings.ToUpper(raw))
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(raw)
}
