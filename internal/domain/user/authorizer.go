package user

import (
	"context"
	"fmt"
)

// Authorizer decides whether an actor may touch another employee's leave.
type Authorizer interface {
	// CanManage allows acting on behalf of employeeID: creating, deciding or
	// cancelling their requests.
	CanManage(ctx context.Context, actor Actor, employeeID string) error
	CanView(ctx context.Context, actor Actor, employeeID string) error
	Require(ctx context.Context, actor Actor, permission Permission) error
}

// RoleAuthorizer grants access from the static role table.
type RoleAuthorizer struct{}

func NewRoleAuthorizer() RoleAuthorizer {
	return RoleAuthorizer{}
}

func (RoleAuthorizer) CanManage(ctx context.Context, actor Actor, employeeID string) error {
	if actor.Can(PermissionLeaveApprove) {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot manage leave of employee %s", ErrInsufficientPermissions, actor.Role, employeeID)
}

func (RoleAuthorizer) CanView(ctx context.Context, actor Actor, employeeID string) error {
	if actor.IsSelf(employeeID) && actor.Can(PermissionLeaveViewOwn) {
		return nil
	}
	if actor.Can(PermissionLeaveViewAll) {
		return nil
	}
	return fmt.Errorf("%w: employee %s", ErrNotOwnRecord, employeeID)
}

func (RoleAuthorizer) Require(ctx context.Context, actor Actor, permission Permission) error {
	if actor.Can(permission) {
		return nil
	}
	return fmt.Errorf("%w: required %q, role is %q", ErrInsufficientPermissions, permission, actor.Role)
}
