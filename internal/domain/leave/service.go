package leave

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
)

type LeaveService interface {
	CreateLeaveRequest(ctx context.Context, actor user.Actor, req CreateLeaveRequestRequest) (LeaveRequestResponse, error)
	ApproveLeaveRequest(ctx context.Context, actor user.Actor, requestID string) (LeaveRequestResponse, error)
	RejectLeaveRequest(ctx context.Context, actor user.Actor, requestID string, req RejectLeaveRequestRequest) (LeaveRequestResponse, error)
	CancelLeaveRequest(ctx context.Context, actor user.Actor, requestID string) (LeaveRequestResponse, error)
	MarkProcessed(ctx context.Context, actor user.Actor, requestID string) (LeaveRequestResponse, error)

	GetLeaveRequest(ctx context.Context, actor user.Actor, requestID string) (LeaveRequestResponse, error)
	ListLeaveRequests(ctx context.Context, actor user.Actor, filter LeaveRequestFilter) (ListLeaveRequestResponse, error)

	GetLeaveBalance(ctx context.Context, actor user.Actor, key BalanceKey) (BalanceResponse, error)
	ListLeaveBalances(ctx context.Context, actor user.Actor, employeeID string, period int) ([]BalanceResponse, error)
	AdjustLeaveBalance(ctx context.Context, actor user.Actor, req AdjustBalanceRequest) (BalanceResponse, error)

	ListLeaveTypes(ctx context.Context) ([]LeaveTypeResponse, error)
}

type EventType string

const (
	EventRequestCreated   EventType = "leave.request.created"
	EventRequestApproved  EventType = "leave.request.approved"
	EventRequestRejected  EventType = "leave.request.rejected"
	EventRequestCancelled EventType = "leave.request.cancelled"
	EventRequestProcessed EventType = "leave.request.processed"
)

// Event describes a committed status change of a leave request.
type Event struct {
	Type       EventType
	Request    LeaveRequest
	ActorID    string
	OccurredAt time.Time
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
