package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/shopspring/decimal"
)

type leaveBalanceRepository struct {
	store *Store
	now   func() time.Time
}

func NewLeaveBalanceRepository(store *Store) leave.BalanceRepository {
	return &leaveBalanceRepository{store: store, now: time.Now}
}

func (r *leaveBalanceRepository) Get(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	var b leave.LeaveBalance
	err := r.store.read(ctx, func() error {
		if err := r.store.check("balance.get"); err != nil {
			return err
		}
		found, ok := r.store.balances[key]
		if !ok {
			return leave.ErrBalanceNotFound
		}
		b = found
		return nil
	})
	return b, err
}

// GetForUpdate needs no row lock: a transaction already owns the whole store.
func (r *leaveBalanceRepository) GetForUpdate(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	return r.Get(ctx, key)
}

// Create inserts balance unless its key already exists and returns the stored row.
func (r *leaveBalanceRepository) Create(ctx context.Context, balance leave.LeaveBalance) (leave.LeaveBalance, error) {
	err := r.store.write(ctx, func() error {
		if err := r.store.check("balance.create"); err != nil {
			return err
		}
		if existing, exists := r.store.balances[balance.Key]; exists {
			balance = existing
			return nil
		}
		now := r.now()
		balance.Version = 1
		balance.CreatedAt = now
		balance.UpdatedAt = now
		r.store.balances[balance.Key] = balance
		return nil
	})
	return balance, err
}

func (r *leaveBalanceRepository) ListByEmployee(ctx context.Context, employeeID string, period int) ([]leave.LeaveBalance, error) {
	var balances []leave.LeaveBalance
	err := r.store.read(ctx, func() error {
		if err := r.store.check("balance.list"); err != nil {
			return err
		}
		for k, b := range r.store.balances {
			if k.EmployeeID != employeeID {
				continue
			}
			if period != 0 && k.Period != period {
				continue
			}
			balances = append(balances, b)
		}
		return nil
	})
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Key.Period != balances[j].Key.Period {
			return balances[i].Key.Period > balances[j].Key.Period
		}
		return balances[i].Key.LeaveType < balances[j].Key.LeaveType
	})
	return balances, err
}

func (r *leaveBalanceRepository) ApplyDelta(ctx context.Context, key leave.BalanceKey, pendingDelta, usedDelta decimal.Decimal) (leave.LeaveBalance, error) {
	var updated leave.LeaveBalance
	err := r.store.write(ctx, func() error {
		if err := r.store.check("balance.apply_delta"); err != nil {
			return err
		}
		b, ok := r.store.balances[key]
		if !ok {
			return leave.ErrBalanceNotFound
		}

		pending := b.Pending.Add(pendingDelta)
		used := b.Used.Add(usedDelta)
		if pending.IsNegative() || used.IsNegative() {
			return fmt.Errorf("%w: %s pending=%s used=%s", leave.ErrBalanceUnderflow, key, pending, used)
		}
		if used.Add(pending).GreaterThan(b.Accrued) {
			return &leave.InsufficientBalanceError{
				Key:       key,
				Available: b.Available(),
				Requested: pendingDelta.Add(usedDelta),
			}
		}

		b.Pending = pending
		b.Used = used
		b.Version++
		b.UpdatedAt = r.now()
		r.store.balances[key] = b
		updated = b
		return nil
	})
	return updated, err
}

func (r *leaveBalanceRepository) SetAccrual(ctx context.Context, key leave.BalanceKey, entitlement, accrued decimal.Decimal) (leave.LeaveBalance, error) {
	var updated leave.LeaveBalance
	err := r.store.write(ctx, func() error {
		if err := r.store.check("balance.set_accrual"); err != nil {
			return err
		}
		b, ok := r.store.balances[key]
		if !ok {
			return leave.ErrBalanceNotFound
		}
		if accrued.LessThan(b.Used.Add(b.Pending)) {
			return &leave.InsufficientBalanceError{
				Key:       key,
				Available: accrued.Sub(b.Used).Sub(b.Pending),
				Requested: b.Used.Add(b.Pending),
			}
		}

		b.Entitlement = entitlement
		b.Accrued = accrued
		b.Version++
		b.UpdatedAt = r.now()
		r.store.balances[key] = b
		updated = b
		return nil
	})
	return updated, err
}
