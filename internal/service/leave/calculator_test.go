package leave

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse(leave.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestChargeableDays(t *testing.T) {
	pto := leave.LeaveType{Code: "pto", CountsWeekends: false}
	lop := leave.LeaveType{Code: "lop", CountsWeekends: true}

	tests := []struct {
		name  string
		lt    leave.LeaveType
		start string
		end   string
		want  int64
	}{
		{"monday to friday", pto, "2025-02-03", "2025-02-07", 5},
		{"friday to monday skips weekend", pto, "2025-02-07", "2025-02-10", 2},
		{"single day", pto, "2025-02-05", "2025-02-05", 1},
		{"weekend only", pto, "2025-02-08", "2025-02-09", 0},
		{"weekend counted", lop, "2025-02-08", "2025-02-09", 2},
		{"friday to monday calendar days", lop, "2025-02-07", "2025-02-10", 4},
		{"two full weeks", pto, "2025-02-03", "2025-02-16", 10},
		{"end before start", pto, "2025-02-07", "2025-02-03", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChargeableDays(tt.lt, date(tt.start), date(tt.end))
			assert.Equal(t, tt.want, got.IntPart())
		})
	}
}

func TestCalculator_Price(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	calc := f.engine.Calculator()

	quote, err := calc.Price(ctx, "emp-1", "pto", date("2025-02-03"), date("2025-02-07"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), quote.TotalDays.IntPart())
	assert.Equal(t, 2025, quote.Period)
	assert.Equal(t, "pto", quote.LeaveType.Code)
}

func TestCalculator_PriceRejectsBadRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	calc := f.engine.Calculator()

	_, err := calc.Price(ctx, "emp-1", "pto", date("2025-02-07"), date("2025-02-03"), "")
	var rangeErr *leave.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	_, err = calc.Price(ctx, "emp-1", "pto", date("2025-02-08"), date("2025-02-09"), "")
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	_, err = calc.Price(ctx, "emp-1", "pto", time.Time{}, date("2025-02-09"), "")
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	_, err = calc.Price(ctx, "emp-1", "sabbatical", date("2025-02-03"), date("2025-02-07"), "")
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestCalculator_OverlapNamesConflictingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, employeeActor, "emp-1", "pto", "2025-02-10", "2025-02-12")

	_, err := f.engine.Calculator().Price(ctx, "emp-1", "pto", date("2025-02-11"), date("2025-02-13"), "")
	var overlap *leave.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, first.ID, overlap.ConflictingRequestID)
	assert.ErrorIs(t, err, leave.ErrOverlappingRequest)

	// Excluding the request itself clears the conflict.
	_, err = f.engine.Calculator().Price(ctx, "emp-1", "pto", date("2025-02-11"), date("2025-02-13"), first.ID)
	assert.NoError(t, err)

	// Another employee is unaffected.
	_, err = f.engine.Calculator().Price(ctx, "emp-2", "pto", date("2025-02-11"), date("2025-02-13"), "")
	assert.NoError(t, err)
}

func TestCalculator_OverlapIgnoresClosedRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, employeeActor, "emp-1", "pto", "2025-02-10", "2025-02-12")
	_, err := f.engine.Cancel(ctx, employeeActor, first.ID)
	require.NoError(t, err)

	_, err = f.engine.Calculator().Price(ctx, "emp-1", "pto", date("2025-02-11"), date("2025-02-13"), "")
	assert.NoError(t, err)
}

func TestCalculator_OverlapAcrossLeaveTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, employeeActor, "emp-1", "sick", "2025-02-10", "2025-02-12")

	_, err := f.engine.Calculator().Price(ctx, "emp-1", "pto", date("2025-02-12"), date("2025-02-14"), "")
	var overlap *leave.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, first.ID, overlap.ConflictingRequestID)
}
