package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const balanceColumns = `employee_id, leave_type, period, entitlement, accrued, used, pending, version, created_at, updated_at`

type leaveBalanceRepositoryImpl struct {
	db *database.DB
}

func NewLeaveBalanceRepository(db *database.DB) leave.BalanceRepository {
	return &leaveBalanceRepositoryImpl{db: db}
}

func scanBalance(row pgx.Row) (leave.LeaveBalance, error) {
	var b leave.LeaveBalance
	err := row.Scan(
		&b.Key.EmployeeID, &b.Key.LeaveType, &b.Key.Period,
		&b.Entitlement, &b.Accrued, &b.Used, &b.Pending,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (r *leaveBalanceRepositoryImpl) get(ctx context.Context, key leave.BalanceKey, forUpdate bool) (leave.LeaveBalance, error) {
	if _, err := uuid.Parse(key.EmployeeID); err != nil {
		return leave.LeaveBalance{}, leave.ErrBalanceNotFound
	}

	q := GetQuerier(ctx, r.db)
	query := `SELECT ` + balanceColumns + `
		FROM leave_balances
		WHERE employee_id = $1 AND leave_type = $2 AND period = $3`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	b, err := scanBalance(q.QueryRow(ctx, query, key.EmployeeID, key.LeaveType, key.Period))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.LeaveBalance{}, leave.ErrBalanceNotFound
		}
		return leave.LeaveBalance{}, leave.Storage("get leave balance", err)
	}
	return b, nil
}

// Get implements leave.BalanceRepository.
func (r *leaveBalanceRepositoryImpl) Get(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	return r.get(ctx, key, false)
}

// GetForUpdate implements leave.BalanceRepository.
func (r *leaveBalanceRepositoryImpl) GetForUpdate(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	return r.get(ctx, key, true)
}

// Create implements leave.BalanceRepository. Concurrent creators of the same
// key both end up holding the single stored row.
func (r *leaveBalanceRepositoryImpl) Create(ctx context.Context, balance leave.LeaveBalance) (leave.LeaveBalance, error) {
	q := GetQuerier(ctx, r.db)
	query := `
		INSERT INTO leave_balances (employee_id, leave_type, period, entitlement, accrued, used, pending, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT (employee_id, leave_type, period) DO NOTHING
	`

	_, err := q.Exec(ctx, query,
		balance.Key.EmployeeID, balance.Key.LeaveType, balance.Key.Period,
		balance.Entitlement, balance.Accrued, balance.Used, balance.Pending,
	)
	if err != nil {
		return leave.LeaveBalance{}, leave.Storage("create leave balance", err)
	}

	return r.get(ctx, balance.Key, true)
}

// ListByEmployee implements leave.BalanceRepository. A zero period lists all periods.
func (r *leaveBalanceRepositoryImpl) ListByEmployee(ctx context.Context, employeeID string, period int) ([]leave.LeaveBalance, error) {
	balances := make([]leave.LeaveBalance, 0)
	if _, err := uuid.Parse(employeeID); err != nil {
		return balances, nil
	}

	q := GetQuerier(ctx, r.db)
	query := `SELECT ` + balanceColumns + `
		FROM leave_balances
		WHERE employee_id = $1 AND ($2 = 0 OR period = $2)
		ORDER BY period DESC, leave_type ASC`

	rows, err := q.Query(ctx, query, employeeID, period)
	if err != nil {
		return nil, leave.Storage("list leave balances", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, leave.Storage("scan leave balance", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, leave.Storage("list leave balances", err)
	}

	return balances, nil
}

// ApplyDelta implements leave.BalanceRepository. The guard lives in the
// UPDATE itself so the counters never leave their invariant even if a caller
// skipped the row lock.
func (r *leaveBalanceRepositoryImpl) ApplyDelta(ctx context.Context, key leave.BalanceKey, pendingDelta, usedDelta decimal.Decimal) (leave.LeaveBalance, error) {
	q := GetQuerier(ctx, r.db)
	query := `
		UPDATE leave_balances
		SET pending = pending + $4,
			used = used + $5,
			version = version + 1,
			updated_at = NOW()
		WHERE employee_id = $1 AND leave_type = $2 AND period = $3
			AND pending + $4 >= 0
			AND used + $5 >= 0
			AND used + $5 + pending + $4 <= accrued
		RETURNING ` + balanceColumns

	b, err := scanBalance(q.QueryRow(ctx, query, key.EmployeeID, key.LeaveType, key.Period, pendingDelta, usedDelta))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveBalance{}, leave.Storage("apply leave balance delta", err)
	}

	// No row updated: work out which guard refused it.
	current, err := r.get(ctx, key, false)
	if err != nil {
		return leave.LeaveBalance{}, err
	}
	pending := current.Pending.Add(pendingDelta)
	used := current.Used.Add(usedDelta)
	if pending.IsNegative() || used.IsNegative() {
		return leave.LeaveBalance{}, fmt.Errorf("%w: %s pending=%s used=%s", leave.ErrBalanceUnderflow, key, pending, used)
	}
	return leave.LeaveBalance{}, &leave.InsufficientBalanceError{
		Key:       key,
		Available: current.Available(),
		Requested: pendingDelta.Add(usedDelta),
	}
}

// SetAccrual implements leave.BalanceRepository.
func (r *leaveBalanceRepositoryImpl) SetAccrual(ctx context.Context, key leave.BalanceKey, entitlement, accrued decimal.Decimal) (leave.LeaveBalance, error) {
	q := GetQuerier(ctx, r.db)
	query := `
		UPDATE leave_balances
		SET entitlement = $4,
			accrued = $5,
			version = version + 1,
			updated_at = NOW()
		WHERE employee_id = $1 AND leave_type = $2 AND period = $3
			AND used + pending <= $5
		RETURNING ` + balanceColumns

	b, err := scanBalance(q.QueryRow(ctx, query, key.EmployeeID, key.LeaveType, key.Period, entitlement, accrued))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveBalance{}, leave.Storage("set leave accrual", err)
	}

	current, err := r.get(ctx, key, false)
	if err != nil {
		return leave.LeaveBalance{}, err
	}
	return leave.LeaveBalance{}, &leave.InsufficientBalanceError{
		Key:       key,
		Available: accrued.Sub(current.Used).Sub(current.Pending),
		Requested: current.Used.Add(current.Pending),
	}
}
