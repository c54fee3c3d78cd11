package rbac

// rolePermissions is the static role to permission table. ADMIN is expected to hold a
// superset of every other role.
var rolePermissions = map[Role]PermissionSet{
	RoleAdmin: NewPermissionSet(AllPermissions()...),
	RoleTeamLead: NewPermissionSet(
		PermServicesView,
		PermServicesManage,
		PermServiceRequestsView,
		PermServiceRequestsCreate,
		PermServiceRequestsUpdate,
		PermServiceRequestsDelete,
		PermClientsView,
		PermClientsManage,
		PermBookingsView,
		PermBookingsManage,
		PermInvoicesView,
		PermInvoicesManage,
		PermTeamView,
		PermTeamManage,
		PermUsersView,
		PermAnalyticsView,
	),
	RoleTeamMember: NewPermissionSet(
		PermServicesView,
		PermServiceRequestsView,
		PermServiceRequestsCreate,
		PermServiceRequestsUpdate,
		PermClientsView,
		PermBookingsView,
		PermBookingsManage,
		PermInvoicesView,
		PermTeamView,
	),
	RoleStaff: NewPermissionSet(
		PermServicesView,
		PermServiceRequestsView,
		PermServiceRequestsCreate,
		PermServiceRequestsUpdate,
		PermClientsView,
		PermBookingsView,
		PermInvoicesView,
	),
	RoleClient: NewPermissionSet(
		PermServicesView,
		PermServiceRequestsView,
		PermServiceRequestsCreate,
		PermBookingsView,
		PermBookingsManage,
		PermInvoicesView,
	),
}

// RolePermissions returns the permission set of role. Unknown roles yield the empty set.
func RolePermissions(role Role) PermissionSet {
	return rolePermissions[role]
}

// HasPermission reports whether role holds p. It fails closed for unknown roles and
// undefined permissions.
func HasPermission(role Role, p Permission) bool {
	return RolePermissions(role).Has(p)
}

// CheckPermissions reports whether role holds every permission in perms.
//
// An empty perms list returns true. Route guards must never be mounted with an empty
// list; authz.Middleware logs a warning when that happens.
func CheckPermissions(role Role, perms ...Permission) bool {
	granted := RolePermissions(role)
	for _, p := range perms {
		if !granted.Has(p) {
			return false
		}
	}
	return true
}

// CheckAnyPermission reports whether role holds at least one permission in perms.
// An empty list returns true, mirroring CheckPermissions.
func CheckAnyPermission(role Role, perms ...Permission) bool {
	if len(perms) == 0 {
		return true
	}
	granted := RolePermissions(role)
	for _, p := range perms {
		if granted.Has(p) {
			return true
		}
	}
	return false
}

// HasRole reports whether role is one of allowed. RoleUnknown never matches.
func HasRole(role Role, allowed ...Role) bool {
	if !role.Valid() {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Grant pairs a role with its permissions for listing.
type Grant struct {
	Role        Role          `json:"role"`
	DisplayName string        `json:"display_name"`
	Permissions PermissionSet `json:"permissions"`
}

// Grants lists every assignable role with its permission set.
func Grants() []Grant {
	roles := AllRoles()
	out := make([]Grant, 0, len(roles))
	for _, r := range roles {
		out = append(out, Grant{Role: r, DisplayName: r.DisplayName(), Permissions: RolePermissions(r)})
	}
	return out
}
