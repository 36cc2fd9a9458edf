package user

type Permission string

const (
	PermissionLeaveViewOwn        Permission = "leave.view_own"
	PermissionLeaveCreate         Permission = "leave.create"
	PermissionLeaveViewAll        Permission = "leave.view_all"
	PermissionLeaveApprove        Permission = "leave.approve"
	PermissionLeaveManageBalances Permission = "leave.manage_balances"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleOwner: {
		PermissionLeaveViewOwn,
		PermissionLeaveCreate,
		PermissionLeaveViewAll,
		PermissionLeaveApprove,
		PermissionLeaveManageBalances,
	},
	RoleManager: {
		// Manager can approve and view team data
		PermissionLeaveViewOwn,
		PermissionLeaveCreate,
		PermissionLeaveViewAll,
		PermissionLeaveApprove,
	},
	RoleEmployee: {
		PermissionLeaveViewOwn,
		PermissionLeaveCreate,
	},
	RolePending: {
		// Pending role has no permissions
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}

	return false
}
