package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

type AccrualMethod string

const (
	AccrualFixed   AccrualMethod = "fixed"
	AccrualMonthly AccrualMethod = "accrual"
)

type LeaveType struct {
	Code               string
	Name               string
	IsPaid             bool
	AccrualMethod      AccrualMethod
	CountsWeekends     bool
	DefaultEntitlement decimal.Decimal
}

// OpeningAccrued is the accrued amount a new balance starts with.
func (t LeaveType) OpeningAccrued() decimal.Decimal {
	if t.AccrualMethod == AccrualFixed {
		return t.DefaultEntitlement
	}
	return decimal.Zero
}

// DefaultLeaveTypes is the reference data loaded into a fresh store.
func DefaultLeaveTypes() []LeaveType {
	return []LeaveType{
		{Code: "pto", Name: "Paid Time Off", IsPaid: true, AccrualMethod: AccrualFixed, DefaultEntitlement: decimal.NewFromInt(12)},
		{Code: "sick", Name: "Sick Leave", IsPaid: true, AccrualMethod: AccrualFixed, DefaultEntitlement: decimal.NewFromInt(10)},
		{Code: "lop", Name: "Loss of Pay", IsPaid: false, AccrualMethod: AccrualFixed, CountsWeekends: true, DefaultEntitlement: decimal.NewFromInt(30)},
		{Code: "comp-off", Name: "Compensatory Off", IsPaid: true, AccrualMethod: AccrualMonthly, DefaultEntitlement: decimal.Zero},
	}
}

type BalanceKey struct {
	EmployeeID string
	LeaveType  string
	Period     int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.EmployeeID, k.LeaveType, k.Period)
}

// PeriodOf returns the accounting period a leave starting on date is charged to.
func PeriodOf(date time.Time) int {
	return date.Year()
}

type LeaveBalance struct {
	Key         BalanceKey
	Entitlement decimal.Decimal
	Accrued     decimal.Decimal
	Used        decimal.Decimal
	Pending     decimal.Decimal
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available is always derived, never stored.
func (b LeaveBalance) Available() decimal.Decimal {
	return b.Accrued.Sub(b.Used).Sub(b.Pending)
}

type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusProcessed RequestStatus = "processed"
)

// Active statuses block overlapping requests.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusApproved || s == StatusProcessed
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusProcessed:
		return true
	}
	return false
}

type LeaveRequest struct {
	ID              string
	EmployeeID      string
	LeaveType       string
	Period          int
	StartDate       time.Time
	EndDate         time.Time
	TotalDays       decimal.Decimal
	Reason          string
	Status          RequestStatus
	CreatedBy       string
	DecidedBy       *string
	DecidedAt       *time.Time
	RejectionReason *string
	CancelledBy     *string
	CancelledAt     *time.Time
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r LeaveRequest) BalanceKey() BalanceKey {
	return BalanceKey{EmployeeID: r.EmployeeID, LeaveType: r.LeaveType, Period: r.Period}
}

// Overlaps reports whether the inclusive ranges [start, end] intersect.
func (r LeaveRequest) Overlaps(start, end time.Time) bool {
	return !r.StartDate.After(end) && !start.After(r.EndDate)
}

// StatusTransition is a compare-and-set on a request status.
type StatusTransition struct {
	RequestID string
	From      RequestStatus
	To        RequestStatus
	ActorID   string
	At        time.Time
	Reason    *string
}

// Operation names the lifecycle operation that performs the transition.
func (t StatusTransition) Operation() string {
	switch t.To {
	case StatusApproved:
		return "approve"
	case StatusRejected:
		return "reject"
	case StatusCancelled:
		return "cancel"
	case StatusProcessed:
		return "process"
	}
	return string(t.To)
}
