package leave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	employeeActor = user.Actor{UserID: "user-emp-1", EmployeeID: "emp-1", Role: user.RoleEmployee}
	otherEmployee = user.Actor{UserID: "user-emp-2", EmployeeID: "emp-2", Role: user.RoleEmployee}
	managerActor  = user.Actor{UserID: "user-mgr-1", EmployeeID: "mgr-1", Role: user.RoleManager}
	ownerActor    = user.Actor{UserID: "user-own-1", EmployeeID: "own-1", Role: user.RoleOwner}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []leave.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event leave.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []leave.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []leave.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store     *memory.Store
	balances  leave.BalanceRepository
	requests  leave.RequestRepository
	publisher *recordingPublisher
	engine    *Engine
	service   leave.LeaveService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore(leave.DefaultLeaveTypes())
	for _, id := range []string{"emp-1", "emp-2", "mgr-1", "own-1"} {
		store.AddEmployee(employee.Employee{ID: id, FullName: id, HireDate: time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)})
	}

	f := &fixture{
		store:     store,
		balances:  memory.NewLeaveBalanceRepository(store),
		requests:  memory.NewLeaveRequestRepository(store),
		publisher: &recordingPublisher{},
	}
	deps := EngineDeps{
		Tx:         store,
		Types:      memory.NewLeaveTypeRepository(store),
		Balances:   f.balances,
		Requests:   f.requests,
		Employees:  memory.NewEmployeeDirectory(store),
		Authorizer: user.NewRoleAuthorizer(),
		Publisher:  f.publisher,
	}
	f.engine = NewEngine(deps)
	f.service = NewLeaveService(deps)
	return f
}

// seedBalance opens a balance with the given counters.
func (f *fixture) seedBalance(t *testing.T, key leave.BalanceKey, accrued, used int64) {
	t.Helper()
	ctx := context.Background()

	_, err := f.balances.Create(ctx, leave.LeaveBalance{
		Key:         key,
		Entitlement: decimal.NewFromInt(accrued),
		Accrued:     decimal.NewFromInt(accrued),
		Used:        decimal.Zero,
		Pending:     decimal.Zero,
	})
	require.NoError(t, err)
	if used > 0 {
		_, err = f.balances.ApplyDelta(ctx, key, decimal.Zero, decimal.NewFromInt(used))
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, key leave.BalanceKey) leave.LeaveBalance {
	t.Helper()
	b, err := f.balances.Get(context.Background(), key)
	require.NoError(t, err)
	return b
}

func (f *fixture) create(t *testing.T, actor user.Actor, employeeID, leaveType, start, end string) leave.LeaveRequest {
	t.Helper()
	req, err := f.engine.Create(context.Background(), actor, leave.CreateLeaveRequestRequest{
		EmployeeID: employeeID,
		LeaveType:  leaveType,
		StartDate:  start,
		EndDate:    end,
		Reason:     "family",
	})
	require.NoError(t, err)
	return req
}

// assertLedgerConsistent checks that the balance counters equal the sums of
// the request days that hold them. baseUsed is used seeded without requests.
func (f *fixture) assertLedgerConsistent(t *testing.T, key leave.BalanceKey, baseUsed int64) {
	t.Helper()
	ctx := context.Background()

	employeeID := key.EmployeeID
	all, _, err := f.requests.List(ctx, leave.LeaveRequestFilter{EmployeeID: &employeeID, Page: 1, Limit: leave.MaxPageLimit})
	require.NoError(t, err)

	pending, used := decimal.Zero, decimal.Zero
	for _, r := range all {
		if r.BalanceKey() != key {
			continue
		}
		switch r.Status {
		case leave.StatusPending:
			pending = pending.Add(r.TotalDays)
		case leave.StatusApproved, leave.StatusProcessed:
			used = used.Add(r.TotalDays)
		}
	}

	b := f.balance(t, key)
	require.Truef(t, b.Pending.Equal(pending), "pending %s, requests sum %s", b.Pending, pending)
	require.Truef(t, b.Used.Sub(decimal.NewFromInt(baseUsed)).Equal(used), "used %s, requests sum %s", b.Used, used)
	require.False(t, b.Available().IsNegative(), "available went negative")
}
