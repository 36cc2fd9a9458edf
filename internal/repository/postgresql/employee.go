package postgresql

import (
	"context"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/database"
	"github.com/google/uuid"
)

type employeeRepositoryImpl struct {
	db *database.DB
}

func NewEmployeeDirectory(db *database.DB) employee.Directory {
	return &employeeRepositoryImpl{db: db}
}

// Exists implements employee.Directory. Soft-deleted employees do not exist.
func (e *employeeRepositoryImpl) Exists(ctx context.Context, employeeID string) (bool, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return false, nil
	}

	q := GetQuerier(ctx, e.db)
	query := `SELECT EXISTS(SELECT 1 FROM employees WHERE id = $1 AND deleted_at IS NULL)`

	var exists bool
	if err := q.QueryRow(ctx, query, employeeID).Scan(&exists); err != nil {
		return false, leave.Storage("check employee", err)
	}

	return exists, nil
}
