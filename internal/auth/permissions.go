package auth

// Permission represents a named capability in the dashboard.
type Permission string

// Permission constants.
const (
	PermFleetRead   Permission = "fleet:read"
	PermFleetWrite  Permission = "fleet:write"
	PermFleetDelete Permission = "fleet:delete"
	PermUserManage  Permission = "user:manage"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleStaff: {
		PermFleetRead,
		PermFleetWrite,
	},
	RoleManager: {
		PermFleetRead,
		PermFleetWrite,
		PermFleetDelete,
	},
	RoleAdmin: {
		PermFleetRead,
		PermFleetWrite,
		PermFleetDelete,
		PermUserManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role, or nil for
// an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
