package memory

import (
	"context"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
)

type employeeDirectory struct {
	store *Store
}

func NewEmployeeDirectory(store *Store) employee.Directory {
	return &employeeDirectory{store: store}
}

func (d *employeeDirectory) Exists(ctx context.Context, employeeID string) (bool, error) {
	var exists bool
	err := d.store.read(ctx, func() error {
		e, ok := d.store.employees[employeeID]
		exists = ok && e.Active()
		return nil
	})
	return exists, err
}
