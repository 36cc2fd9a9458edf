package leave

import (
	"math"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type CreateLeaveRequestRequest struct {
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Reason     string `json:"reason"`
}

func (r *CreateLeaveRequestRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}

	if validator.IsEmpty(r.LeaveType) {
		errs = append(errs, validator.ValidationError{
			Field:   "leave_type",
			Message: "leave_type is required",
		})
	} else if !validator.IsValidLeaveCode(r.LeaveType) {
		errs = append(errs, validator.ValidationError{
			Field:   "leave_type",
			Message: "leave_type must be a lowercase code such as pto or comp-off",
		})
	}

	if len(r.Reason) > 1000 {
		errs = append(errs, validator.ValidationError{
			Field:   "reason",
			Message: "reason must not exceed 1000 characters",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// DateRange parses the request dates. Missing or malformed dates and an end
// before the start are range errors rather than validation errors.
func (r *CreateLeaveRequestRequest) DateRange() (time.Time, time.Time, error) {
	return ParseRange(r.StartDate, r.EndDate)
}

func ParseRange(startStr, endStr string) (time.Time, time.Time, error) {
	if validator.IsEmpty(startStr) || validator.IsEmpty(endStr) {
		return time.Time{}, time.Time{}, &RangeError{Reason: "start_date and end_date are required"}
	}

	start, ok := validator.IsValidDate(startStr)
	if !ok {
		return time.Time{}, time.Time{}, &RangeError{Reason: "start_date must be in YYYY-MM-DD format"}
	}

	end, ok := validator.IsValidDate(endStr)
	if !ok {
		return time.Time{}, time.Time{}, &RangeError{Reason: "end_date must be in YYYY-MM-DD format"}
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, &RangeError{Reason: "end_date must not be before start_date"}
	}

	return start, end, nil
}

type RejectLeaveRequestRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectLeaveRequestRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Reason) {
		errs = append(errs, validator.ValidationError{
			Field:   "reason",
			Message: "rejection reason is required",
		})
	}
	if len(r.Reason) > 1000 {
		errs = append(errs, validator.ValidationError{
			Field:   "reason",
			Message: "reason must not exceed 1000 characters",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type AdjustBalanceRequest struct {
	EmployeeID  string           `json:"-"`
	LeaveType   string           `json:"-"`
	Period      int              `json:"period"`
	Entitlement *decimal.Decimal `json:"entitlement"`
	Accrued     *decimal.Decimal `json:"accrued"`
}

func (r *AdjustBalanceRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}
	if validator.IsEmpty(r.LeaveType) {
		errs = append(errs, validator.ValidationError{
			Field:   "leave_type",
			Message: "leave_type is required",
		})
	}
	if r.Period < 1900 || r.Period > 9999 {
		errs = append(errs, validator.ValidationError{
			Field:   "period",
			Message: "period must be a four digit year",
		})
	}
	if r.Entitlement == nil && r.Accrued == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "entitlement",
			Message: "entitlement or accrued must be provided",
		})
	}
	if r.Entitlement != nil && r.Entitlement.IsNegative() {
		errs = append(errs, validator.ValidationError{
			Field:   "entitlement",
			Message: "entitlement must not be negative",
		})
	}
	if r.Accrued != nil && r.Accrued.IsNegative() {
		errs = append(errs, validator.ValidationError{
			Field:   "accrued",
			Message: "accrued must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (r *AdjustBalanceRequest) Key() BalanceKey {
	return BalanceKey{EmployeeID: r.EmployeeID, LeaveType: r.LeaveType, Period: r.Period}
}

type LeaveRequestFilter struct {
	EmployeeID *string
	Status     *string
	LeaveType  *string
	StartDate  *string
	EndDate    *string
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
}

var sortableColumns = []string{"start_date", "end_date", "status", "created_at"}

// Validate checks the filter and fills in paging and sorting defaults.
func (f *LeaveRequestFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Page == 0 {
		f.Page = 1
	}
	if f.Page < 1 {
		errs = append(errs, validator.ValidationError{
			Field:   "page",
			Message: "page must be at least 1",
		})
	}

	if f.Limit == 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit < 1 || f.Limit > MaxPageLimit {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must be between 1 and 100",
		})
	}

	if f.Status != nil && !RequestStatus(*f.Status).Valid() {
		errs = append(errs, validator.ValidationError{
			Field:   "status",
			Message: "status must be one of draft, pending, approved, rejected, cancelled, processed",
		})
	}

	var start, end time.Time
	if f.StartDate != nil {
		d, ok := validator.IsValidDate(*f.StartDate)
		if !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "start_date",
				Message: "start_date must be in YYYY-MM-DD format",
			})
		}
		start = d
	}
	if f.EndDate != nil {
		d, ok := validator.IsValidDate(*f.EndDate)
		if !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "end_date",
				Message: "end_date must be in YYYY-MM-DD format",
			})
		}
		end = d
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		errs = append(errs, validator.ValidationError{
			Field:   "end_date",
			Message: "end_date must not be before start_date",
		})
	}

	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if !validator.IsInSlice(f.SortBy, sortableColumns) {
		errs = append(errs, validator.ValidationError{
			Field:   "sort_by",
			Message: "sort_by must be one of start_date, end_date, status, created_at",
		})
	}

	f.SortOrder = strings.ToLower(f.SortOrder)
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		errs = append(errs, validator.ValidationError{
			Field:   "sort_order",
			Message: "sort_order must be asc or desc",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (f LeaveRequestFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type LeaveRequestResponse struct {
	ID              string     `json:"id"`
	EmployeeID      string     `json:"employee_id"`
	LeaveType       string     `json:"leave_type"`
	Period          int        `json:"period"`
	StartDate       string     `json:"start_date"`
	EndDate         string     `json:"end_date"`
	TotalDays       float64    `json:"total_days"`
	Reason          string     `json:"reason,omitempty"`
	Status          string     `json:"status"`
	CreatedBy       string     `json:"created_by"`
	DecidedBy       *string    `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CancelledBy     *string    `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func NewLeaveRequestResponse(r LeaveRequest) LeaveRequestResponse {
	return LeaveRequestResponse{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		LeaveType:       r.LeaveType,
		Period:          r.Period,
		StartDate:       r.StartDate.Format(DateLayout),
		EndDate:         r.EndDate.Format(DateLayout),
		TotalDays:       r.TotalDays.InexactFloat64(),
		Reason:          r.Reason,
		Status:          string(r.Status),
		CreatedBy:       r.CreatedBy,
		DecidedBy:       r.DecidedBy,
		DecidedAt:       r.DecidedAt,
		RejectionReason: r.RejectionReason,
		CancelledBy:     r.CancelledBy,
		CancelledAt:     r.CancelledAt,
		ProcessedAt:     r.ProcessedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type ListLeaveRequestResponse struct {
	Items      []LeaveRequestResponse `json:"items"`
	TotalCount int64                  `json:"total_count"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

func NewListLeaveRequestResponse(requests []LeaveRequest, total int64, filter LeaveRequestFilter) ListLeaveRequestResponse {
	items := make([]LeaveRequestResponse, 0, len(requests))
	for _, r := range requests {
		items = append(items, NewLeaveRequestResponse(r))
	}

	totalPages := 0
	if filter.Limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(filter.Limit)))
	}

	return ListLeaveRequestResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}
}

type BalanceResponse struct {
	EmployeeID  string  `json:"employee_id"`
	LeaveType   string  `json:"leave_type"`
	Period      int     `json:"period"`
	Entitlement float64 `json:"entitlement"`
	Accrued     float64 `json:"accrued"`
	Used        float64 `json:"used"`
	Pending     float64 `json:"pending"`
	Available   float64 `json:"available"`
}

func NewBalanceResponse(b LeaveBalance) BalanceResponse {
	return BalanceResponse{
		EmployeeID:  b.Key.EmployeeID,
		LeaveType:   b.Key.LeaveType,
		Period:      b.Key.Period,
		Entitlement: b.Entitlement.InexactFloat64(),
		Accrued:     b.Accrued.InexactFloat64(),
		Used:        b.Used.InexactFloat64(),
		Pending:     b.Pending.InexactFloat64(),
		Available:   b.Available().InexactFloat64(),
	}
}

type LeaveTypeResponse struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	IsPaid             bool    `json:"is_paid"`
	AccrualMethod      string  `json:"accrual_method"`
	CountsWeekends     bool    `json:"counts_weekends"`
	DefaultEntitlement float64 `json:"default_entitlement"`
}

func NewLeaveTypeResponse(t LeaveType) LeaveTypeResponse {
	return LeaveTypeResponse{
		Code:               t.Code,
		Name:               t.Name,
		IsPaid:             t.IsPaid,
		AccrualMethod:      string(t.AccrualMethod),
		CountsWeekends:     t.CountsWeekends,
		DefaultEntitlement: t.DefaultEntitlement.InexactFloat64(),
	}
}
