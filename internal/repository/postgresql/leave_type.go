package postgresql

import (
	"context"
	"errors"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type leaveTypeRepositoryImpl struct {
	db *database.DB
}

func NewLeaveTypeRepository(db *database.DB) leave.TypeRepository {
	return &leaveTypeRepositoryImpl{db: db}
}

// GetByCode implements leave.TypeRepository.
func (l *leaveTypeRepositoryImpl) GetByCode(ctx context.Context, code string) (leave.LeaveType, error) {
	q := GetQuerier(ctx, l.db)
	query := `
		SELECT code, name, is_paid, accrual_method, counts_weekends, default_entitlement
		FROM leave_types
		WHERE code = $1
	`

	var lt leave.LeaveType
	err := q.QueryRow(ctx, query, code).Scan(
		&lt.Code, &lt.Name, &lt.IsPaid, &lt.AccrualMethod, &lt.CountsWeekends, &lt.DefaultEntitlement,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.LeaveType{}, leave.ErrLeaveTypeNotFound
		}
		return leave.LeaveType{}, leave.Storage("get leave type", err)
	}

	return lt, nil
}

// List implements leave.TypeRepository.
func (l *leaveTypeRepositoryImpl) List(ctx context.Context) ([]leave.LeaveType, error) {
	q := GetQuerier(ctx, l.db)
	query := `
		SELECT code, name, is_paid, accrual_method, counts_weekends, default_entitlement
		FROM leave_types
		ORDER BY code
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, leave.Storage("list leave types", err)
	}
	defer rows.Close()

	types := make([]leave.LeaveType, 0)
	for rows.Next() {
		var lt leave.LeaveType
		if err := rows.Scan(
			&lt.Code, &lt.Name, &lt.IsPaid, &lt.AccrualMethod, &lt.CountsWeekends, &lt.DefaultEntitlement,
		); err != nil {
			return nil, leave.Storage("scan leave type", err)
		}
		types = append(types, lt)
	}

	if err := rows.Err(); err != nil {
		return nil, leave.Storage("list leave types", err)
	}

	return types, nil
}

// Seed upserts reference leave types.
func (l *leaveTypeRepositoryImpl) Seed(ctx context.Context, types []leave.LeaveType) error {
	q := GetQuerier(ctx, l.db)
	query := `
		INSERT INTO leave_types (code, name, is_paid, accrual_method, counts_weekends, default_entitlement)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO NOTHING
	`

	for _, lt := range types {
		if _, err := q.Exec(ctx, query,
			lt.Code, lt.Name, lt.IsPaid, string(lt.AccrualMethod), lt.CountsWeekends, lt.DefaultEntitlement,
		); err != nil {
			return leave.Storage("seed leave type "+lt.Code, err)
		}
	}

	return nil
}

// LeaveTypeSeeder is implemented by the PostgreSQL leave type repository.
type LeaveTypeSeeder interface {
	Seed(ctx context.Context, types []leave.LeaveType) error
}
