package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/keylock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EngineDeps struct {
	Tx         leave.TxManager
	Types      leave.TypeRepository
	Balances   leave.BalanceRepository
	Requests   leave.RequestRepository
	Employees  employee.Directory
	Authorizer user.Authorizer
	Publisher  leave.EventPublisher
	Locks      *keylock.Locker
	Now        func() time.Time
}

// Engine owns every mutation of requests and balances. Each operation holds
// the balance key lock for its read-validate-write sequence and commits the
// request status and the ledger change in one transaction. Events go out
// after the locks are released.
type Engine struct {
	tx         leave.TxManager
	types      leave.TypeRepository
	balances   leave.BalanceRepository
	requests   leave.RequestRepository
	employees  employee.Directory
	authorizer user.Authorizer
	publisher  leave.EventPublisher
	calc       *Calculator
	locks      *keylock.Locker
	now        func() time.Time
}

func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		tx:         deps.Tx,
		types:      deps.Types,
		balances:   deps.Balances,
		requests:   deps.Requests,
		employees:  deps.Employees,
		authorizer: deps.Authorizer,
		publisher:  deps.Publisher,
		calc:       NewCalculator(deps.Types, deps.Requests),
		locks:      deps.Locks,
		now:        deps.Now,
	}
	if e.locks == nil {
		e.locks = keylock.New()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.authorizer == nil {
		e.authorizer = user.NewRoleAuthorizer()
	}
	return e
}

func (e *Engine) Calculator() *Calculator {
	return e.calc
}

func (e *Engine) Create(ctx context.Context, actor user.Actor, req leave.CreateLeaveRequestRequest) (leave.LeaveRequest, error) {
	if err := req.Validate(); err != nil {
		return leave.LeaveRequest{}, err
	}
	start, end, err := req.DateRange()
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	if !actor.IsSelf(req.EmployeeID) {
		if err := e.authorizer.CanManage(ctx, actor, req.EmployeeID); err != nil {
			return leave.LeaveRequest{}, unauthorized(err)
		}
	}
	if err := e.ensureEmployee(ctx, req.EmployeeID); err != nil {
		return leave.LeaveRequest{}, err
	}

	key := leave.BalanceKey{EmployeeID: req.EmployeeID, LeaveType: req.LeaveType, Period: leave.PeriodOf(start)}

	// Overlap spans every leave type of the employee, so creation also holds
	// an employee-wide lock, always taken before the balance key.
	unlock, err := e.lock(ctx, employeeLockKey(req.EmployeeID), key.String())
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	var created leave.LeaveRequest
	err = e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.requests.LockEmployee(ctx, req.EmployeeID); err != nil {
			return err
		}

		quote, err := e.calc.Price(ctx, req.EmployeeID, req.LeaveType, start, end, "")
		if err != nil {
			return err
		}

		balance, err := e.balanceForUpdate(ctx, key, quote.LeaveType)
		if err != nil {
			return err
		}
		if balance.Available().LessThan(quote.TotalDays) {
			return &leave.InsufficientBalanceError{Key: key, Available: balance.Available(), Requested: quote.TotalDays}
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate leave request id: %w", err)
		}

		created, err = e.requests.Create(ctx, leave.LeaveRequest{
			ID:         id.String(),
			EmployeeID: req.EmployeeID,
			LeaveType:  req.LeaveType,
			Period:     quote.Period,
			StartDate:  normalizeDate(start),
			EndDate:    normalizeDate(end),
			TotalDays:  quote.TotalDays,
			Reason:     req.Reason,
			Status:     leave.StatusPending,
			CreatedBy:  actor.ID(),
		})
		if err != nil {
			return err
		}

		_, err = e.balances.ApplyDelta(ctx, key, quote.TotalDays, decimal.Zero)
		return err
	})
	// Locks cover the read-validate-write only, never the event publish.
	unlock()
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	slog.InfoContext(ctx, "Leave request created",
		"request_id", created.ID,
		"employee_id", created.EmployeeID,
		"leave_type", created.LeaveType,
		"period", created.Period,
		"total_days", created.TotalDays.String(),
		"actor_id", actor.ID(),
	)
	e.publish(ctx, leave.EventRequestCreated, created, actor)

	return created, nil
}

func (e *Engine) Approve(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequest, error) {
	return e.transition(ctx, actor, requestID, transitionPlan{
		from:      leave.StatusPending,
		to:        leave.StatusApproved,
		event:     leave.EventRequestApproved,
		authorize: e.authorizeDecision,
		ledger: func(days decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
			return days.Neg(), days
		},
	})
}

func (e *Engine) Reject(ctx context.Context, actor user.Actor, requestID string, req leave.RejectLeaveRequestRequest) (leave.LeaveRequest, error) {
	if err := req.Validate(); err != nil {
		return leave.LeaveRequest{}, err
	}
	reason := req.Reason
	return e.transition(ctx, actor, requestID, transitionPlan{
		from:      leave.StatusPending,
		to:        leave.StatusRejected,
		event:     leave.EventRequestRejected,
		reason:    &reason,
		authorize: e.authorizeDecision,
		ledger: func(days decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
			return days.Neg(), decimal.Zero
		},
	})
}

// Cancel withdraws a pending request. Approved leave is not cancellable here;
// it has already moved to used.
func (e *Engine) Cancel(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequest, error) {
	return e.transition(ctx, actor, requestID, transitionPlan{
		from:      leave.StatusPending,
		to:        leave.StatusCancelled,
		event:     leave.EventRequestCancelled,
		authorize: e.authorizeCancel,
		ledger: func(days decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
			return days.Neg(), decimal.Zero
		},
	})
}

// MarkProcessed records that payroll consumed an approved request. The ledger
// does not move.
func (e *Engine) MarkProcessed(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequest, error) {
	return e.transition(ctx, actor, requestID, transitionPlan{
		from:  leave.StatusApproved,
		to:    leave.StatusProcessed,
		event: leave.EventRequestProcessed,
		authorize: func(ctx context.Context, actor user.Actor, _ leave.LeaveRequest) error {
			return e.authorizer.Require(ctx, actor, user.PermissionLeaveManageBalances)
		},
	})
}

// AdjustBalance sets the entitlement and accrued amounts of a balance,
// creating it when absent. accrued may never fall below used + pending.
func (e *Engine) AdjustBalance(ctx context.Context, actor user.Actor, req leave.AdjustBalanceRequest) (leave.LeaveBalance, error) {
	if err := req.Validate(); err != nil {
		return leave.LeaveBalance{}, err
	}
	if err := e.authorizer.Require(ctx, actor, user.PermissionLeaveManageBalances); err != nil {
		return leave.LeaveBalance{}, unauthorized(err)
	}

	lt, err := e.types.GetByCode(ctx, req.LeaveType)
	if err != nil {
		return leave.LeaveBalance{}, err
	}
	if err := e.ensureEmployee(ctx, req.EmployeeID); err != nil {
		return leave.LeaveBalance{}, err
	}

	key := req.Key()
	unlock, err := e.lock(ctx, key.String())
	if err != nil {
		return leave.LeaveBalance{}, err
	}
	defer unlock()

	var updated leave.LeaveBalance
	err = e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := e.balanceForUpdate(ctx, key, lt)
		if err != nil {
			return err
		}

		entitlement, accrued := current.Entitlement, current.Accrued
		if req.Entitlement != nil {
			entitlement = *req.Entitlement
		}
		if req.Accrued != nil {
			accrued = *req.Accrued
		}

		updated, err = e.balances.SetAccrual(ctx, key, entitlement, accrued)
		return err
	})
	if err != nil {
		return leave.LeaveBalance{}, err
	}

	slog.InfoContext(ctx, "Leave balance adjusted",
		"balance_key", key.String(),
		"entitlement", updated.Entitlement.String(),
		"accrued", updated.Accrued.String(),
		"actor_id", actor.ID(),
	)

	return updated, nil
}

type transitionPlan struct {
	from      leave.RequestStatus
	to        leave.RequestStatus
	event     leave.EventType
	reason    *string
	authorize func(ctx context.Context, actor user.Actor, req leave.LeaveRequest) error
	// ledger returns the pending and used deltas for a request of days.
	// nil leaves the balance untouched.
	ledger func(days decimal.Decimal) (pendingDelta, usedDelta decimal.Decimal)
}

func (e *Engine) transition(ctx context.Context, actor user.Actor, requestID string, plan transitionPlan) (leave.LeaveRequest, error) {
	current, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	if err := plan.authorize(ctx, actor, current); err != nil {
		return leave.LeaveRequest{}, unauthorized(err)
	}

	key := current.BalanceKey()
	unlock, err := e.lock(ctx, key.String())
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	var updated leave.LeaveRequest
	err = e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = e.requests.Transition(ctx, leave.StatusTransition{
			RequestID: requestID,
			From:      plan.from,
			To:        plan.to,
			ActorID:   actor.ID(),
			At:        e.now(),
			Reason:    plan.reason,
		})
		if err != nil {
			return err
		}

		if plan.ledger == nil {
			return nil
		}
		pendingDelta, usedDelta := plan.ledger(updated.TotalDays)
		_, err = e.balances.ApplyDelta(ctx, key, pendingDelta, usedDelta)
		return err
	})
	unlock()
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	slog.InfoContext(ctx, "Leave request status changed",
		"request_id", updated.ID,
		"from", string(plan.from),
		"to", string(updated.Status),
		"balance_key", key.String(),
		"actor_id", actor.ID(),
	)
	e.publish(ctx, plan.event, updated, actor)

	return updated, nil
}

func (e *Engine) authorizeDecision(ctx context.Context, actor user.Actor, req leave.LeaveRequest) error {
	if actor.IsSelf(req.EmployeeID) {
		return user.ErrSelfDecision
	}
	return e.authorizer.CanManage(ctx, actor, req.EmployeeID)
}

func (e *Engine) authorizeCancel(ctx context.Context, actor user.Actor, req leave.LeaveRequest) error {
	if actor.IsSelf(req.EmployeeID) {
		return nil
	}
	return e.authorizer.CanManage(ctx, actor, req.EmployeeID)
}

// balanceForUpdate returns the locked balance for key, opening it from the
// leave type defaults on first use.
func (e *Engine) balanceForUpdate(ctx context.Context, key leave.BalanceKey, lt leave.LeaveType) (leave.LeaveBalance, error) {
	balance, err := e.balances.GetForUpdate(ctx, key)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, leave.ErrBalanceNotFound) {
		return leave.LeaveBalance{}, err
	}

	return e.balances.Create(ctx, leave.LeaveBalance{
		Key:         key,
		Entitlement: lt.DefaultEntitlement,
		Accrued:     lt.OpeningAccrued(),
		Used:        decimal.Zero,
		Pending:     decimal.Zero,
	})
}

func (e *Engine) ensureEmployee(ctx context.Context, employeeID string) error {
	if e.employees == nil {
		return nil
	}
	exists, err := e.employees.Exists(ctx, employeeID)
	if err != nil {
		return leave.Storage("employee.exists", err)
	}
	if !exists {
		return fmt.Errorf("%w: %w: %s", leave.ErrNotFound, employee.ErrEmployeeNotFound, employeeID)
	}
	return nil
}

// lock acquires keys in the given order and releases them in reverse.
func (e *Engine) lock(ctx context.Context, keys ...string) (func(), error) {
	unlocks := make([]func(), 0, len(keys))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, k := range keys {
		unlock, err := e.locks.Lock(ctx, k)
		if err != nil {
			release()
			return nil, fmt.Errorf("acquire lock %s: %w", k, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (e *Engine) publish(ctx context.Context, eventType leave.EventType, req leave.LeaveRequest, actor user.Actor) {
	if e.publisher == nil {
		return
	}
	event := leave.Event{
		Type:       eventType,
		Request:    req,
		ActorID:    actor.ID(),
		OccurredAt: e.now(),
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		slog.WarnContext(ctx, "Failed to publish leave event",
			"event_type", string(eventType),
			"request_id", req.ID,
			"error", err,
		)
	}
}

func employeeLockKey(employeeID string) string {
	return "employee|" + employeeID
}

func unauthorized(err error) error {
	if errors.Is(err, leave.ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", leave.ErrUnauthorized, err)
}
