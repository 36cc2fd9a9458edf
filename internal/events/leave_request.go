package events

import (
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
)

const (
	LeaveRequestTopic   = "leave.requests"
	ReconciliationTopic = "payroll.leave.reconciled"
)

// LeaveRequestEvent is the wire form of a committed leave request status change.
type LeaveRequestEvent struct {
	EventType  string    `json:"event_type"`
	RequestID  string    `json:"request_id"`
	EmployeeID string    `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	Period     int       `json:"period"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	TotalDays  string    `json:"total_days"`
	Status     string    `json:"status"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewLeaveRequestEvent(e leave.Event) LeaveRequestEvent {
	return LeaveRequestEvent{
		EventType:  string(e.Type),
		RequestID:  e.Request.ID,
		EmployeeID: e.Request.EmployeeID,
		LeaveType:  e.Request.LeaveType,
		Period:     e.Request.Period,
		StartDate:  e.Request.StartDate.Format(leave.DateLayout),
		EndDate:    e.Request.EndDate.Format(leave.DateLayout),
		TotalDays:  e.Request.TotalDays.String(),
		Status:     string(e.Request.Status),
		ActorID:    e.ActorID,
		OccurredAt: e.OccurredAt.UTC(),
	}
}

// ReconciliationEvent is sent by payroll once an approved leave has been paid out.
type ReconciliationEvent struct {
	RequestID   string `json:"request_id"`
	ProcessedBy string `json:"processed_by"`
}
