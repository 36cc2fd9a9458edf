package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type LeaveHandler interface {
	ListTypes(w http.ResponseWriter, r *http.Request)

	GetBalance(w http.ResponseWriter, r *http.Request)
	ListBalances(w http.ResponseWriter, r *http.Request)
	AdjustBalance(w http.ResponseWriter, r *http.Request)

	ListRequests(w http.ResponseWriter, r *http.Request)
	GetRequest(w http.ResponseWriter, r *http.Request)
	CreateRequest(w http.ResponseWriter, r *http.Request)
	ApproveRequest(w http.ResponseWriter, r *http.Request)
	RejectRequest(w http.ResponseWriter, r *http.Request)
	CancelRequest(w http.ResponseWriter, r *http.Request)
	ProcessRequest(w http.ResponseWriter, r *http.Request)
}

type LeaveHandlerImpl struct {
	leaveService leave.LeaveService
	now          func() time.Time
}

func NewLeaveHandler(leaveService leave.LeaveService) LeaveHandler {
	return &LeaveHandlerImpl{
		leaveService: leaveService,
		now:          time.Now,
	}
}

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (user.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, user.ErrMissingIdentity.Error())
	}
	return actor, ok
}

// ListTypes implements LeaveHandler.
func (l *LeaveHandlerImpl) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := l.leaveService.ListLeaveTypes(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, types)
}

// GetBalance implements LeaveHandler.
func (l *LeaveHandlerImpl) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	period, ok := l.parsePeriod(w, r, l.now().Year())
	if !ok {
		return
	}

	key := leave.BalanceKey{
		EmployeeID: chi.URLParam(r, "employee_id"),
		LeaveType:  chi.URLParam(r, "leave_type"),
		Period:     period,
	}

	balance, err := l.leaveService.GetLeaveBalance(r.Context(), actor, key)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, balance)
}

// ListBalances implements LeaveHandler. Without a period every period is listed.
func (l *LeaveHandlerImpl) ListBalances(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	period, ok := l.parsePeriod(w, r, 0)
	if !ok {
		return
	}

	balances, err := l.leaveService.ListLeaveBalances(r.Context(), actor, chi.URLParam(r, "employee_id"), period)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, balances)
}

// AdjustBalance implements LeaveHandler.
func (l *LeaveHandlerImpl) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req leave.AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("AdjustBalance decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.EmployeeID = chi.URLParam(r, "employee_id")
	req.LeaveType = chi.URLParam(r, "leave_type")

	balance, err := l.leaveService.AdjustLeaveBalance(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave balance adjusted successfully", balance)
}

// ListRequests implements LeaveHandler.
func (l *LeaveHandlerImpl) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := leave.LeaveRequestFilter{
		SortBy:    query.Get("sort_by"),
		SortOrder: query.Get("sort_order"),
	}

	if employeeID := query.Get("employee_id"); employeeID != "" {
		filter.EmployeeID = &employeeID
	}
	if status := query.Get("status"); status != "" {
		filter.Status = &status
	}
	if leaveType := query.Get("leave_type"); leaveType != "" {
		filter.LeaveType = &leaveType
	}
	if startDate := query.Get("start_date"); startDate != "" {
		filter.StartDate = &startDate
	}
	if endDate := query.Get("end_date"); endDate != "" {
		filter.EndDate = &endDate
	}

	// Pagination
	if pageStr := query.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			response.BadRequest(w, "page must be a number", nil)
			return
		}
		filter.Page = page
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			response.BadRequest(w, "limit must be a number", nil)
			return
		}
		filter.Limit = limit
	}

	result, err := l.leaveService.ListLeaveRequests(r.Context(), actor, filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, result.Items, &response.Meta{
		Page:       result.Page,
		Limit:      result.Limit,
		TotalItems: result.TotalCount,
		TotalPages: result.TotalPages,
	})
}

// GetRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	request, err := l.leaveService.GetLeaveRequest(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, request)
}

// CreateRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req leave.CreateLeaveRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("CreateRequest decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	created, err := l.leaveService.CreateLeaveRequest(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Leave request submitted successfully", created)
}

// ApproveRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	approved, err := l.leaveService.ApproveLeaveRequest(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request approved successfully", approved)
}

// RejectRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) RejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req leave.RejectLeaveRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("RejectRequest decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	rejected, err := l.leaveService.RejectLeaveRequest(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request rejected successfully", rejected)
}

// CancelRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	cancelled, err := l.leaveService.CancelLeaveRequest(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request cancelled successfully", cancelled)
}

// ProcessRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	processed, err := l.leaveService.MarkProcessed(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request marked as processed", processed)
}

func (l *LeaveHandlerImpl) parsePeriod(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	periodStr := r.URL.Query().Get("period")
	if periodStr == "" {
		return fallback, true
	}

	period, err := strconv.Atoi(periodStr)
	if err != nil || period < 1900 || period > 9999 {
		response.BadRequest(w, "period must be a four digit year", nil)
		return 0, false
	}
	return period, true
}
