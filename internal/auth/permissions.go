package auth

import "slices"

// Role is the authorisation tier carried in a token.
type Role string

const (
	// RoleViewer can read light state and follow the event stream.
	RoleViewer Role = "viewer"

	// RoleOperator can also switch lights.
	RoleOperator Role = "operator"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermLightRead    Permission = "light:read"
	PermLightOperate Permission = "light:operate"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermLightRead,
	},
	RoleOperator: {
		PermLightRead,
		PermLightOperate,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
