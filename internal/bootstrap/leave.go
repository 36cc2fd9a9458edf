package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/config"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/database"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/repository/memory"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/repository/postgresql"
	leaveService "github.com/cmlabs-hris/hris-leave-ledger/internal/service/leave"
)

// LeaveStack is the leave service wired to the configured store.
type LeaveStack struct {
	Service leave.LeaveService
	closers []func()
}

func NewLeaveStack(ctx context.Context, cfg *config.Config, publisher leave.EventPublisher) (*LeaveStack, error) {
	stack := &LeaveStack{}
	deps := leaveService.EngineDeps{Publisher: publisher}

	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		store := memory.NewStore(leave.DefaultLeaveTypes())
		for _, id := range cfg.Database.MemoryEmployees {
			store.AddEmployee(employee.Employee{ID: id, EmployeeCode: id, FullName: id, HireDate: time.Now()})
		}
		deps.Tx = store
		deps.Types = memory.NewLeaveTypeRepository(store)
		deps.Balances = memory.NewLeaveBalanceRepository(store)
		deps.Requests = memory.NewLeaveRequestRepository(store)
		deps.Employees = memory.NewEmployeeDirectory(store)
		slog.Warn("Using in-memory leave store, data is lost on restart", "employees", len(cfg.Database.MemoryEmployees))

	case config.StoreDriverPostgres:
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		stack.closers = append(stack.closers, db.Close)

		types := postgresql.NewLeaveTypeRepository(db)
		if seeder, ok := types.(postgresql.LeaveTypeSeeder); ok {
			if err := seeder.Seed(ctx, leave.DefaultLeaveTypes()); err != nil {
				stack.Close()
				return nil, fmt.Errorf("seed leave types: %w", err)
			}
		}

		deps.Tx = postgresql.NewTxManager(db)
		deps.Types = types
		deps.Balances = postgresql.NewLeaveBalanceRepository(db)
		deps.Requests = postgresql.NewLeaveRequestRepository(db)
		deps.Employees = postgresql.NewEmployeeDirectory(db)

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Database.Driver)
	}

	stack.Service = leaveService.NewLeaveService(deps)
	return stack, nil
}

func (s *LeaveStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
