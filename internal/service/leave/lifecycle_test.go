package leave

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ptoKey = leave.BalanceKey{EmployeeID: "emp-1", LeaveType: "pto", Period: 2025}

func TestEngine_CreateApproveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 2)

	// 9 working days against 8 available.
	_, err := f.engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
		EmployeeID: "emp-1", LeaveType: "pto", StartDate: "2025-03-03", EndDate: "2025-03-13",
	})
	var insufficient *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(decimal.NewFromInt(8)))
	assert.True(t, insufficient.Requested.Equal(decimal.NewFromInt(9)))
	assert.True(t, f.balance(t, ptoKey).Pending.IsZero())

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-12")
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, int64(8), req.TotalDays.IntPart())

	b := f.balance(t, ptoKey)
	assert.Equal(t, int64(8), b.Pending.IntPart())
	assert.True(t, b.Available().IsZero())

	approved, err := f.engine.Approve(ctx, managerActor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, "mgr-1", *approved.DecidedBy)
	assert.NotNil(t, approved.DecidedAt)

	b = f.balance(t, ptoKey)
	assert.Equal(t, int64(10), b.Used.IntPart())
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Available().IsZero())
	f.assertLedgerConsistent(t, ptoKey, 2)
}

func TestEngine_ConcurrentCreatesSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 8, 0)

	ranges := [][2]string{{"2025-03-03", "2025-03-07"}, {"2025-03-10", "2025-03-14"}}
	errs := make([]error, len(ranges))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r [2]string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
				EmployeeID: "emp-1", LeaveType: "pto", StartDate: r[0], EndDate: r[1],
			})
		}(i, r)
	}
	close(start)
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, leave.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(5), f.balance(t, ptoKey).Pending.IntPart())
	f.assertLedgerConsistent(t, ptoKey, 0)
}

func TestEngine_ApproveTwiceMutatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-05")
	_, err := f.engine.Approve(ctx, managerActor, req.ID)
	require.NoError(t, err)
	before := f.balance(t, ptoKey)

	_, err = f.engine.Approve(ctx, managerActor, req.ID)
	var transition *leave.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, leave.StatusApproved, transition.From)
	assert.Equal(t, "approve", transition.Operation)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	after := f.balance(t, ptoKey)
	assert.True(t, before.Used.Equal(after.Used))
	assert.True(t, before.Pending.Equal(after.Pending))
	assert.Equal(t, before.Version, after.Version)
}

func TestEngine_CreateCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	existing := f.create(t, employeeActor, "emp-1", "pto", "2025-01-06", "2025-01-07")
	before := f.balance(t, ptoKey).Pending

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-05")
	cancelled, err := f.engine.Cancel(ctx, employeeActor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, "emp-1", *cancelled.CancelledBy)

	assert.True(t, f.balance(t, ptoKey).Pending.Equal(before))
	assert.Equal(t, leave.StatusPending, mustGet(t, f, existing.ID).Status)
	f.assertLedgerConsistent(t, ptoKey, 0)
}

func TestEngine_RejectReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-05")

	_, err := f.engine.Reject(ctx, managerActor, req.ID, leave.RejectLeaveRequestRequest{Reason: " "})
	require.Error(t, err)
	assert.Equal(t, int64(3), f.balance(t, ptoKey).Pending.IntPart())

	rejected, err := f.engine.Reject(ctx, managerActor, req.ID, leave.RejectLeaveRequestRequest{Reason: "team offsite"})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "team offsite", *rejected.RejectionReason)

	b := f.balance(t, ptoKey)
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Used.IsZero())

	// Rejected requests are terminal.
	_, err = f.engine.Approve(ctx, managerActor, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	_, err = f.engine.Cancel(ctx, employeeActor, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestEngine_CancelApprovedIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-05")
	_, err := f.engine.Approve(ctx, managerActor, req.ID)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, employeeActor, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	assert.Equal(t, int64(3), f.balance(t, ptoKey).Used.IntPart())
}

func TestEngine_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-05")

	t.Run("employee cannot approve", func(t *testing.T) {
		_, err := f.engine.Approve(ctx, otherEmployee, req.ID)
		assert.ErrorIs(t, err, leave.ErrUnauthorized)
	})

	t.Run("manager cannot approve own request", func(t *testing.T) {
		own := f.create(t, managerActor, "mgr-1", "pto", "2025-03-03", "2025-03-04")
		_, err := f.engine.Approve(ctx, managerActor, own.ID)
		assert.ErrorIs(t, err, leave.ErrUnauthorized)
		assert.ErrorIs(t, err, user.ErrSelfDecision)
	})

	t.Run("other employee cannot cancel", func(t *testing.T) {
		_, err := f.engine.Cancel(ctx, otherEmployee, req.ID)
		assert.ErrorIs(t, err, leave.ErrUnauthorized)
	})

	t.Run("employee cannot file for someone else", func(t *testing.T) {
		_, err := f.engine.Create(ctx, otherEmployee, leave.CreateLeaveRequestRequest{
			EmployeeID: "emp-1", LeaveType: "pto", StartDate: "2025-04-07", EndDate: "2025-04-07",
		})
		assert.ErrorIs(t, err, leave.ErrUnauthorized)
	})

	t.Run("manager files and cancels on behalf", func(t *testing.T) {
		onBehalf := f.create(t, managerActor, "emp-1", "pto", "2025-04-07", "2025-04-07")
		assert.Equal(t, "mgr-1", onBehalf.CreatedBy)

		_, err := f.engine.Cancel(ctx, managerActor, onBehalf.ID)
		assert.NoError(t, err)
	})

	assert.Equal(t, leave.StatusPending, mustGet(t, f, req.ID).Status)
	f.assertLedgerConsistent(t, ptoKey, 0)
}

func TestEngine_MarkProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)
	system := user.System("payroll")

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-05")

	_, err := f.engine.MarkProcessed(ctx, system, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	_, err = f.engine.Approve(ctx, managerActor, req.ID)
	require.NoError(t, err)
	before := f.balance(t, ptoKey)

	_, err = f.engine.MarkProcessed(ctx, employeeActor, req.ID)
	assert.ErrorIs(t, err, leave.ErrUnauthorized)

	processed, err := f.engine.MarkProcessed(ctx, system, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusProcessed, processed.Status)
	assert.NotNil(t, processed.ProcessedAt)

	after := f.balance(t, ptoKey)
	assert.True(t, before.Used.Equal(after.Used))
	assert.True(t, before.Pending.Equal(after.Pending))

	// Processed leave still blocks the dates.
	_, err = f.engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
		EmployeeID: "emp-1", LeaveType: "pto", StartDate: "2025-03-05", EndDate: "2025-03-06",
	})
	assert.ErrorIs(t, err, leave.ErrOverlappingRequest)
	f.assertLedgerConsistent(t, ptoKey, 0)
}

func TestEngine_LazyBalanceCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.balances.Get(ctx, ptoKey)
	require.ErrorIs(t, err, leave.ErrBalanceNotFound)

	f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-07")

	b := f.balance(t, ptoKey)
	assert.Equal(t, int64(12), b.Entitlement.IntPart())
	assert.Equal(t, int64(12), b.Accrued.IntPart())
	assert.Equal(t, int64(5), b.Pending.IntPart())

	// Accrual types open at zero, and the failed create leaves no balance behind.
	compKey := leave.BalanceKey{EmployeeID: "emp-1", LeaveType: "comp-off", Period: 2025}
	_, err = f.engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
		EmployeeID: "emp-1", LeaveType: "comp-off", StartDate: "2025-05-05", EndDate: "2025-05-05",
	})
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
	_, err = f.balances.Get(ctx, compKey)
	assert.ErrorIs(t, err, leave.ErrBalanceNotFound)
}

func TestEngine_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     leave.CreateLeaveRequestRequest
		wantErr error
	}{
		{
			name:    "missing dates",
			req:     leave.CreateLeaveRequestRequest{EmployeeID: "emp-1", LeaveType: "pto"},
			wantErr: leave.ErrInvalidRange,
		},
		{
			name:    "end before start",
			req:     leave.CreateLeaveRequestRequest{EmployeeID: "emp-1", LeaveType: "pto", StartDate: "2025-03-07", EndDate: "2025-03-03"},
			wantErr: leave.ErrInvalidRange,
		},
		{
			name:    "malformed date",
			req:     leave.CreateLeaveRequestRequest{EmployeeID: "emp-1", LeaveType: "pto", StartDate: "03/03/2025", EndDate: "2025-03-03"},
			wantErr: leave.ErrInvalidRange,
		},
		{
			name:    "weekend only",
			req:     leave.CreateLeaveRequestRequest{EmployeeID: "emp-1", LeaveType: "pto", StartDate: "2025-03-08", EndDate: "2025-03-09"},
			wantErr: leave.ErrInvalidRange,
		},
		{
			name:    "unknown leave type",
			req:     leave.CreateLeaveRequestRequest{EmployeeID: "emp-1", LeaveType: "sabbatical", StartDate: "2025-03-03", EndDate: "2025-03-03"},
			wantErr: leave.ErrNotFound,
		},
		{
			name:    "unknown employee",
			req:     leave.CreateLeaveRequestRequest{EmployeeID: "emp-404", LeaveType: "pto", StartDate: "2025-03-03", EndDate: "2025-03-03"},
			wantErr: leave.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, ownerActor, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEngine_StorageFailureAppliesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	boom := errors.New("connection reset")
	f.store.SetFaultHook(func(op string) error {
		if op == "balance.apply_delta" {
			return boom
		}
		return nil
	})

	_, err := f.engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
		EmployeeID: "emp-1", LeaveType: "pto", StartDate: "2025-03-03", EndDate: "2025-03-05",
	})
	assert.ErrorIs(t, err, leave.ErrStorage)
	assert.ErrorIs(t, err, boom)

	f.store.SetFaultHook(nil)

	employeeID := "emp-1"
	requests, total, err := f.requests.List(ctx, leave.LeaveRequestFilter{EmployeeID: &employeeID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Zero(t, total)
	assert.True(t, f.balance(t, ptoKey).Pending.IsZero())
	assert.Empty(t, f.publisher.types())
}

func TestEngine_PublishesEventsAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)

	a := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-04")
	b := f.create(t, employeeActor, "emp-1", "pto", "2025-03-10", "2025-03-11")
	c := f.create(t, employeeActor, "emp-1", "pto", "2025-03-17", "2025-03-18")

	_, err := f.engine.Approve(ctx, managerActor, a.ID)
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, managerActor, b.ID, leave.RejectLeaveRequestRequest{Reason: "coverage"})
	require.NoError(t, err)
	_, err = f.engine.Cancel(ctx, employeeActor, c.ID)
	require.NoError(t, err)
	_, err = f.engine.MarkProcessed(ctx, user.System("payroll"), a.ID)
	require.NoError(t, err)

	assert.Equal(t, []leave.EventType{
		leave.EventRequestCreated,
		leave.EventRequestCreated,
		leave.EventRequestCreated,
		leave.EventRequestApproved,
		leave.EventRequestRejected,
		leave.EventRequestCancelled,
		leave.EventRequestProcessed,
	}, f.publisher.types())

	// A failed transition publishes nothing.
	_, err = f.engine.Approve(ctx, managerActor, a.ID)
	require.Error(t, err)
	assert.Len(t, f.publisher.types(), 7)
}

func TestEngine_PublishFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.seedBalance(t, ptoKey, 10, 0)
	f.publisher.err = errors.New("broker down")

	req := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-04")
	assert.Equal(t, leave.StatusPending, mustGet(t, f, req.ID).Status)
	assert.Equal(t, int64(2), f.balance(t, ptoKey).Pending.IntPart())
}

// stallingPublisher holds every created event until release is closed.
type stallingPublisher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *stallingPublisher) Publish(ctx context.Context, event leave.Event) error {
	if event.Type != leave.EventRequestCreated {
		return nil
	}
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return nil
}

func TestEngine_PublishRunsOutsideBalanceLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 10, 0)
	pending := f.create(t, employeeActor, "emp-1", "pto", "2025-03-03", "2025-03-04")

	pub := &stallingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	engine := NewEngine(EngineDeps{
		Tx:         f.store,
		Types:      memory.NewLeaveTypeRepository(f.store),
		Balances:   f.balances,
		Requests:   f.requests,
		Employees:  memory.NewEmployeeDirectory(f.store),
		Authorizer: user.NewRoleAuthorizer(),
		Publisher:  pub,
	})

	createDone := make(chan error, 1)
	go func() {
		_, err := engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
			EmployeeID: "emp-1",
			LeaveType:  "pto",
			StartDate:  "2025-03-10",
			EndDate:    "2025-03-11",
		})
		createDone <- err
	}()

	select {
	case <-pub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("create never reached the publisher")
	}

	approveDone := make(chan error, 1)
	go func() {
		_, err := engine.Approve(ctx, managerActor, pending.ID)
		approveDone <- err
	}()

	select {
	case err := <-approveDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(pub.release)
		t.Fatal("approve on the same balance key waited for another operation's publish")
	}

	close(pub.release)
	require.NoError(t, <-createDone)

	b := f.balance(t, ptoKey)
	assert.Equal(t, int64(2), b.Used.IntPart())
	assert.Equal(t, int64(2), b.Pending.IntPart())
}

func TestEngine_ApproveCancelRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 30, 0)

	for i := 0; i < 20; i++ {
		day := date("2025-06-02").AddDate(0, 0, 7*i).Format(leave.DateLayout)
		req := f.create(t, employeeActor, "emp-1", "pto", day, day)

		var wg sync.WaitGroup
		var approveErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.engine.Approve(ctx, managerActor, req.ID)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.engine.Cancel(ctx, employeeActor, req.ID)
		}()
		wg.Wait()

		require.True(t, (approveErr == nil) != (cancelErr == nil), "exactly one of approve and cancel must win")
		loser := approveErr
		if loser == nil {
			loser = cancelErr
		}
		require.ErrorIs(t, loser, leave.ErrInvalidTransition)
		f.assertLedgerConsistent(t, ptoKey, 0)
	}
}

func TestEngine_RandomOperationsKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBalance(t, ptoKey, 15, 0)
	rng := rand.New(rand.NewSource(42))

	var open []string
	for i := 0; i < 200; i++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(open) == 0:
			// Random one or two day request in 2025 H1.
			day := rng.Intn(150)
			start := date("2025-01-01").AddDate(0, 0, day)
			end := start.AddDate(0, 0, rng.Intn(2))
			req, err := f.engine.Create(ctx, employeeActor, leave.CreateLeaveRequestRequest{
				EmployeeID: "emp-1", LeaveType: "pto",
				StartDate: start.Format(leave.DateLayout), EndDate: end.Format(leave.DateLayout),
			})
			if err == nil {
				open = append(open, req.ID)
			} else {
				require.True(t,
					errors.Is(err, leave.ErrInsufficientBalance) ||
						errors.Is(err, leave.ErrOverlappingRequest) ||
						errors.Is(err, leave.ErrInvalidRange),
					"unexpected error %v", err)
			}
		default:
			idx := rng.Intn(len(open))
			id := open[idx]
			var err error
			switch op {
			case 1:
				_, err = f.engine.Approve(ctx, managerActor, id)
			case 2:
				_, err = f.engine.Reject(ctx, managerActor, id, leave.RejectLeaveRequestRequest{Reason: "no"})
			case 3:
				_, err = f.engine.Cancel(ctx, employeeActor, id)
			}
			require.NoError(t, err)
			open = append(open[:idx], open[idx+1:]...)
		}

		f.assertLedgerConsistent(t, ptoKey, 0)
	}
}

func TestEngine_AdjustBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	compKey := leave.BalanceKey{EmployeeID: "emp-1", LeaveType: "comp-off", Period: 2025}
	two := decimal.NewFromInt(2)

	_, err := f.engine.AdjustBalance(ctx, managerActor, leave.AdjustBalanceRequest{
		EmployeeID: "emp-1", LeaveType: "comp-off", Period: 2025, Accrued: &two,
	})
	assert.ErrorIs(t, err, leave.ErrUnauthorized)

	b, err := f.engine.AdjustBalance(ctx, ownerActor, leave.AdjustBalanceRequest{
		EmployeeID: "emp-1", LeaveType: "comp-off", Period: 2025, Entitlement: &two, Accrued: &two,
	})
	require.NoError(t, err)
	assert.True(t, b.Accrued.Equal(two))
	assert.True(t, b.Available().Equal(two))

	f.create(t, employeeActor, "emp-1", "comp-off", "2025-05-05", "2025-05-06")

	one := decimal.NewFromInt(1)
	_, err = f.engine.AdjustBalance(ctx, ownerActor, leave.AdjustBalanceRequest{
		EmployeeID: "emp-1", LeaveType: "comp-off", Period: 2025, Accrued: &one,
	})
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
	assert.True(t, f.balance(t, compKey).Accrued.Equal(two))
	f.assertLedgerConsistent(t, compKey, 0)
}

func mustGet(t *testing.T, f *fixture, id string) leave.LeaveRequest {
	t.Helper()
	req, err := f.requests.GetByID(context.Background(), id)
	require.NoError(t, err)
	return req
}
