package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TxManager runs fn atomically. Repositories called with the ctx passed to fn
// take part in the same transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TypeRepository interface {
	GetByCode(ctx context.Context, code string) (LeaveType, error)
	List(ctx context.Context) ([]LeaveType, error)
}

type BalanceRepository interface {
	Get(ctx context.Context, key BalanceKey) (LeaveBalance, error)
	// GetForUpdate locks the balance row for the rest of the transaction.
	GetForUpdate(ctx context.Context, key BalanceKey) (LeaveBalance, error)
	// Create inserts balance unless the key exists, returning the stored row
	// locked for update either way.
	Create(ctx context.Context, balance LeaveBalance) (LeaveBalance, error)
	ListByEmployee(ctx context.Context, employeeID string, period int) ([]LeaveBalance, error)
	// ApplyDelta moves pending and used by the given amounts. It fails with an
	// *InsufficientBalanceError when used + pending would exceed accrued.
	ApplyDelta(ctx context.Context, key BalanceKey, pendingDelta, usedDelta decimal.Decimal) (LeaveBalance, error)
	SetAccrual(ctx context.Context, key BalanceKey, entitlement, accrued decimal.Decimal) (LeaveBalance, error)
}

type RequestRepository interface {
	Create(ctx context.Context, request LeaveRequest) (LeaveRequest, error)
	GetByID(ctx context.Context, id string) (LeaveRequest, error)
	// FindOverlapping returns active requests of the employee intersecting
	// [start, end], ordered by start date. excludeID may be empty.
	FindOverlapping(ctx context.Context, employeeID string, start, end time.Time, excludeID string) ([]LeaveRequest, error)
	// Transition applies t only when the stored status equals t.From and
	// returns a *TransitionError carrying the stored status otherwise.
	Transition(ctx context.Context, t StatusTransition) (LeaveRequest, error)
	List(ctx context.Context, filter LeaveRequestFilter) ([]LeaveRequest, int64, error)
	// LockEmployee serializes request creation for one employee until the
	// transaction ends.
	LockEmployee(ctx context.Context, employeeID string) error
}
