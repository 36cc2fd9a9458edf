package leave

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/shopspring/decimal"
)

// Quote is the price of a prospective request: how many days it charges and
// to which period.
type Quote struct {
	LeaveType leave.LeaveType
	TotalDays decimal.Decimal
	Period    int
}

// Calculator prices date ranges and detects overlaps. It only reads.
type Calculator struct {
	types    leave.TypeRepository
	requests leave.RequestRepository
}

func NewCalculator(types leave.TypeRepository, requests leave.RequestRepository) *Calculator {
	return &Calculator{types: types, requests: requests}
}

// Price validates [start, end] for employeeID and returns its quote. A request
// with excludeID is ignored when checking overlap.
func (c *Calculator) Price(ctx context.Context, employeeID, leaveTypeCode string, start, end time.Time, excludeID string) (Quote, error) {
	if start.IsZero() || end.IsZero() {
		return Quote{}, &leave.RangeError{Reason: "start_date and end_date are required"}
	}
	start, end = normalizeDate(start), normalizeDate(end)
	if end.Before(start) {
		return Quote{}, &leave.RangeError{Reason: "end_date must not be before start_date"}
	}

	lt, err := c.types.GetByCode(ctx, leaveTypeCode)
	if err != nil {
		return Quote{}, err
	}

	days := ChargeableDays(lt, start, end)
	if !days.IsPositive() {
		return Quote{}, &leave.RangeError{Reason: "range contains no chargeable days"}
	}

	overlapping, err := c.requests.FindOverlapping(ctx, employeeID, start, end, excludeID)
	if err != nil {
		return Quote{}, err
	}
	if len(overlapping) > 0 {
		return Quote{}, &leave.OverlapError{ConflictingRequestID: overlapping[0].ID}
	}

	return Quote{
		LeaveType: lt,
		TotalDays: days,
		Period:    leave.PeriodOf(start),
	}, nil
}

// ChargeableDays counts the days in the inclusive range [start, end] that
// leave type lt charges for. Weekends are skipped unless lt counts them.
func ChargeableDays(lt leave.LeaveType, start, end time.Time) decimal.Decimal {
	start, end = normalizeDate(start), normalizeDate(end)
	if end.Before(start) {
		return decimal.Zero
	}

	count := int64(0)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !lt.CountsWeekends && isWeekend(d) {
			continue
		}
		count++
	}
	return decimal.NewFromInt(count)
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// normalizeDate drops the clock so ranges compare as calendar dates.
func normalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
