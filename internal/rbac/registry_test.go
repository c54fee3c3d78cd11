package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermissionMatchesTable(t *testing.T) {
	for _, role := range AllRoles() {
		granted := RolePermissions(role)
		for _, perm := range AllPermissions() {
			assert.Equal(t, granted.Has(perm), HasPermission(role, perm), "%s/%s", role, perm)
		}
	}
}

func TestAdminHoldsEveryPermission(t *testing.T) {
	for _, perm := range AllPermissions() {
		assert.True(t, HasPermission(RoleAdmin, perm), perm.String())
	}
}

func TestAdminIsSupersetOfEveryRole(t *testing.T) {
	admin := RolePermissions(RoleAdmin)
	for _, role := range AllRoles() {
		assert.True(t, admin.Contains(RolePermissions(role)), role.String())
	}
}

func TestEveryAssignableRoleHasPermissions(t *testing.T) {
	for _, role := range AllRoles() {
		assert.False(t, RolePermissions(role).IsEmpty(), role.String())
	}
}

func TestClientCannotDeleteServiceRequests(t *testing.T) {
	assert.False(t, HasPermission(RoleClient, PermServiceRequestsDelete))
	assert.False(t, HasPermission(ParseRole("CLIENT"), PermServiceRequestsDelete))
	assert.True(t, HasPermission(RoleClient, PermServiceRequestsCreate))
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	for _, perm := range AllPermissions() {
		assert.False(t, HasPermission(RoleUnknown, perm))
		assert.False(t, HasPermission(ParseRole("NOT_A_ROLE"), perm))
		assert.False(t, HasPermission(Role(200), perm))
	}
}

func TestUndefinedPermissionIsDenied(t *testing.T) {
	assert.False(t, HasPermission(RoleAdmin, Permission(0)))
	assert.False(t, HasPermission(RoleAdmin, permissionCount))
	assert.False(t, HasPermission(RoleAdmin, Permission(255)))
}

func TestCheckPermissions(t *testing.T) {
	assert.True(t, CheckPermissions(RoleTeamLead, PermClientsView, PermClientsManage))
	assert.False(t, CheckPermissions(RoleStaff, PermClientsView, PermClientsManage))
	assert.False(t, CheckPermissions(RoleUnknown, PermServicesView))
}

// An empty guard list grants access to every role, including unknown ones. Callers must
// not mount guards with an empty list.
func TestCheckPermissionsEmptyListIsVacuouslyTrue(t *testing.T) {
	assert.True(t, CheckPermissions(RoleClient))
	assert.True(t, CheckPermissions(RoleUnknown))
	assert.True(t, CheckPermissions(RoleClient, []Permission{}...))
}

func TestCheckAnyPermission(t *testing.T) {
	assert.True(t, CheckAnyPermission(RoleClient, PermUsersManage, PermBookingsView))
	assert.False(t, CheckAnyPermission(RoleClient, PermUsersManage, PermAuditView))
	assert.True(t, CheckAnyPermission(RoleClient))
}

func TestHasRole(t *testing.T) {
	assert.True(t, HasRole(RoleAdmin, RoleAdmin, RoleTeamLead))
	assert.False(t, HasRole(RoleStaff, RoleAdmin, RoleTeamLead))
	assert.False(t, HasRole(RoleUnknown, RoleUnknown))
	assert.False(t, HasRole(RoleAdmin))
}

func TestRolePermissionsUnknownIsEmptyNonNil(t *testing.T) {
	set := RolePermissions(RoleUnknown)
	assert.True(t, set.IsEmpty())
	assert.Equal(t, 0, set.Len())
	require.NotNil(t, set.Slice())
	assert.Empty(t, set.Slice())
	require.NotNil(t, set.Strings())

	raw, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestPermissionSetDeduplicates(t *testing.T) {
	set := NewPermissionSet(PermClientsView, PermClientsView, Permission(0), PermAuditView)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []Permission{PermClientsView, PermAuditView}, set.Slice())
	assert.Equal(t, []string{"CLIENTS_VIEW", "AUDIT_VIEW"}, set.Strings())
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"ADMIN":       RoleAdmin,
		" admin ":     RoleAdmin,
		"team_lead":   RoleTeamLead,
		"team-member": RoleTeamMember,
		"Staff":       RoleStaff,
		"CLIENT":      RoleClient,
		"":            RoleUnknown,
		"UNKNOWN":     RoleUnknown,
		"superuser":   RoleUnknown,
		"ADMIN; DROP": RoleUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseRole(raw), raw)
	}
}

func TestRoleTextRoundTrip(t *testing.T) {
	var payload struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"team_lead"}`), &payload))
	assert.Equal(t, RoleTeamLead, payload.Role)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"TEAM_LEAD"}`, string(raw))

	err = json.Unmarshal([]byte(`{"role":"owner"}`), &payload)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestRoleDisplayName(t *testing.T) {
	assert.Equal(t, "Team Lead", RoleTeamLead.DisplayName())
	assert.Equal(t, "Admin", RoleAdmin.DisplayName())
	assert.Equal(t, "Unknown", RoleUnknown.DisplayName())
}

func TestParsePermission(t *testing.T) {
	p, ok := ParsePermission("service_requests.delete")
	require.True(t, ok)
	assert.Equal(t, PermServiceRequestsDelete, p)

	_, ok = ParsePermission("SERVICE_REQUESTS_PURGE")
	assert.False(t, ok)
}

func TestGrantsCoverAssignableRoles(t *testing.T) {
	grants := Grants()
	require.Len(t, grants, len(AllRoles()))
	assert.Equal(t, RoleAdmin, grants[0].Role)
	assert.Equal(t, len(AllPermissions()), grants[0].Permissions.Len())
}
