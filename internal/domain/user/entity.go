package user

type Role string

const (
	RoleOwner    Role = "owner"    // Company owner - full access
	RoleManager  Role = "manager"  // Can approve leave
	RoleEmployee Role = "employee" // Regular employee
	RolePending  Role = "pending"  // Still in onboarding
)

func (r Role) Valid() bool {
	_, ok := RolePermissions[r]
	return ok
}

// Actor is the authenticated caller of an operation, taken from the access token.
type Actor struct {
	UserID     string
	EmployeeID string
	Role       Role
}

// ID identifies the actor in audit fields.
func (a Actor) ID() string {
	if a.EmployeeID != "" {
		return a.EmployeeID
	}
	return a.UserID
}

func (a Actor) Can(permission Permission) bool {
	return HasPermission(a.Role, permission)
}

// IsSelf reports whether the actor is the given employee.
func (a Actor) IsSelf(employeeID string) bool {
	return a.EmployeeID != "" && a.EmployeeID == employeeID
}

// System is the actor used for machine-driven transitions.
func System(name string) Actor {
	return Actor{UserID: name, Role: RoleOwner}
}
