package memory

import (
	"context"
	"sort"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
)

type leaveTypeRepository struct {
	store *Store
}

func NewLeaveTypeRepository(store *Store) leave.TypeRepository {
	return &leaveTypeRepository{store: store}
}

func (r *leaveTypeRepository) GetByCode(ctx context.Context, code string) (leave.LeaveType, error) {
	var lt leave.LeaveType
	err := r.store.read(ctx, func() error {
		t, ok := r.store.types[code]
		if !ok {
			return leave.ErrLeaveTypeNotFound
		}
		lt = t
		return nil
	})
	return lt, err
}

func (r *leaveTypeRepository) List(ctx context.Context) ([]leave.LeaveType, error) {
	var types []leave.LeaveType
	err := r.store.read(ctx, func() error {
		for _, t := range r.store.types {
			types = append(types, t)
		}
		return nil
	})
	sort.Slice(types, func(i, j int) bool { return types[i].Code < types[j].Code })
	return types, err
}
