package leave

import (
	"context"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
)

// BalanceQuery reads balances. Available is derived on every read.
type BalanceQuery struct {
	balances   leave.BalanceRepository
	authorizer user.Authorizer
}

func NewBalanceQuery(balances leave.BalanceRepository, authorizer user.Authorizer) *BalanceQuery {
	if authorizer == nil {
		authorizer = user.NewRoleAuthorizer()
	}
	return &BalanceQuery{balances: balances, authorizer: authorizer}
}

func (q *BalanceQuery) Get(ctx context.Context, actor user.Actor, key leave.BalanceKey) (leave.LeaveBalance, error) {
	if err := q.authorizer.CanView(ctx, actor, key.EmployeeID); err != nil {
		return leave.LeaveBalance{}, unauthorized(err)
	}
	return q.balances.Get(ctx, key)
}

// List returns the employee's balances for period, or for every period when
// period is zero.
func (q *BalanceQuery) List(ctx context.Context, actor user.Actor, employeeID string, period int) ([]leave.LeaveBalance, error) {
	if err := q.authorizer.CanView(ctx, actor, employeeID); err != nil {
		return nil, unauthorized(err)
	}
	return q.balances.ListByEmployee(ctx, employeeID, period)
}
