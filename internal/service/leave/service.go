package leave

import (
	"context"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
)

type LeaveServiceImpl struct {
	types      leave.TypeRepository
	requests   leave.RequestRepository
	engine     *Engine
	balances   *BalanceQuery
	authorizer user.Authorizer
}

func NewLeaveService(deps EngineDeps) leave.LeaveService {
	if deps.Authorizer == nil {
		deps.Authorizer = user.NewRoleAuthorizer()
	}
	return &LeaveServiceImpl{
		types:      deps.Types,
		requests:   deps.Requests,
		engine:     NewEngine(deps),
		balances:   NewBalanceQuery(deps.Balances, deps.Authorizer),
		authorizer: deps.Authorizer,
	}
}

// CreateLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) CreateLeaveRequest(ctx context.Context, actor user.Actor, req leave.CreateLeaveRequestRequest) (leave.LeaveRequestResponse, error) {
	if req.EmployeeID == "" {
		req.EmployeeID = actor.EmployeeID
	}
	created, err := l.engine.Create(ctx, actor, req)
	if err != nil {
		return leave.LeaveRequestResponse{}, err
	}
	return leave.NewLeaveRequestResponse(created), nil
}

// ApproveLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) ApproveLeaveRequest(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequestResponse, error) {
	approved, err := l.engine.Approve(ctx, actor, requestID)
	if err != nil {
		return leave.LeaveRequestResponse{}, err
	}
	return leave.NewLeaveRequestResponse(approved), nil
}

// RejectLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) RejectLeaveRequest(ctx context.Context, actor user.Actor, requestID string, req leave.RejectLeaveRequestRequest) (leave.LeaveRequestResponse, error) {
	rejected, err := l.engine.Reject(ctx, actor, requestID, req)
	if err != nil {
		return leave.LeaveRequestResponse{}, err
	}
	return leave.NewLeaveRequestResponse(rejected), nil
}

// CancelLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) CancelLeaveRequest(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequestResponse, error) {
	cancelled, err := l.engine.Cancel(ctx, actor, requestID)
	if err != nil {
		return leave.LeaveRequestResponse{}, err
	}
	return leave.NewLeaveRequestResponse(cancelled), nil
}

// MarkProcessed implements leave.LeaveService.
func (l *LeaveServiceImpl) MarkProcessed(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequestResponse, error) {
	processed, err := l.engine.MarkProcessed(ctx, actor, requestID)
	if err != nil {
		return leave.LeaveRequestResponse{}, err
	}
	return leave.NewLeaveRequestResponse(processed), nil
}

// GetLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) GetLeaveRequest(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequestResponse, error) {
	request, err := l.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.LeaveRequestResponse{}, err
	}

	// Employees only see their own requests
	if err := l.authorizer.CanView(ctx, actor, request.EmployeeID); err != nil {
		return leave.LeaveRequestResponse{}, unauthorized(err)
	}

	return leave.NewLeaveRequestResponse(request), nil
}

// ListLeaveRequests implements leave.LeaveService. Callers without
// leave.view_all are restricted to their own requests.
func (l *LeaveServiceImpl) ListLeaveRequests(ctx context.Context, actor user.Actor, filter leave.LeaveRequestFilter) (leave.ListLeaveRequestResponse, error) {
	if err := filter.Validate(); err != nil {
		return leave.ListLeaveRequestResponse{}, err
	}

	if !actor.Can(user.PermissionLeaveViewAll) {
		if actor.EmployeeID == "" {
			return leave.ListLeaveRequestResponse{}, unauthorized(user.ErrMissingIdentity)
		}
		if filter.EmployeeID != nil && *filter.EmployeeID != actor.EmployeeID {
			return leave.ListLeaveRequestResponse{}, unauthorized(user.ErrNotOwnRecord)
		}
		own := actor.EmployeeID
		filter.EmployeeID = &own
	}

	requests, total, err := l.requests.List(ctx, filter)
	if err != nil {
		return leave.ListLeaveRequestResponse{}, err
	}

	return leave.NewListLeaveRequestResponse(requests, total, filter), nil
}

// GetLeaveBalance implements leave.LeaveService.
func (l *LeaveServiceImpl) GetLeaveBalance(ctx context.Context, actor user.Actor, key leave.BalanceKey) (leave.BalanceResponse, error) {
	balance, err := l.balances.Get(ctx, actor, key)
	if err != nil {
		return leave.BalanceResponse{}, err
	}
	return leave.NewBalanceResponse(balance), nil
}

// ListLeaveBalances implements leave.LeaveService.
func (l *LeaveServiceImpl) ListLeaveBalances(ctx context.Context, actor user.Actor, employeeID string, period int) ([]leave.BalanceResponse, error) {
	balances, err := l.balances.List(ctx, actor, employeeID, period)
	if err != nil {
		return nil, err
	}

	result := make([]leave.BalanceResponse, 0, len(balances))
	for _, b := range balances {
		result = append(result, leave.NewBalanceResponse(b))
	}
	return result, nil
}

// AdjustLeaveBalance implements leave.LeaveService.
func (l *LeaveServiceImpl) AdjustLeaveBalance(ctx context.Context, actor user.Actor, req leave.AdjustBalanceRequest) (leave.BalanceResponse, error) {
	balance, err := l.engine.AdjustBalance(ctx, actor, req)
	if err != nil {
		return leave.BalanceResponse{}, err
	}
	return leave.NewBalanceResponse(balance), nil
}

// ListLeaveTypes implements leave.LeaveService.
func (l *LeaveServiceImpl) ListLeaveTypes(ctx context.Context) ([]leave.LeaveTypeResponse, error) {
	types, err := l.types.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]leave.LeaveTypeResponse, 0, len(types))
	for _, t := range types {
		result = append(result, leave.NewLeaveTypeResponse(t))
	}
	return result, nil
}

var _ leave.LeaveService = (*LeaveServiceImpl)(nil)
