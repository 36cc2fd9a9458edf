package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, employee_id, leave_type, period, start_date, end_date, total_days, reason, status,
	created_by, decided_by, decided_at, rejection_reason, cancelled_by, cancelled_at, processed_at, created_at, updated_at`

type leaveRequestRepositoryImpl struct {
	db *database.DB
}

func NewLeaveRequestRepository(db *database.DB) leave.RequestRepository {
	return &leaveRequestRepositoryImpl{db: db}
}

func scanRequest(row pgx.Row) (leave.LeaveRequest, error) {
	var req leave.LeaveRequest
	var reason *string
	err := row.Scan(
		&req.ID, &req.EmployeeID, &req.LeaveType, &req.Period, &req.StartDate, &req.EndDate, &req.TotalDays,
		&reason, &req.Status, &req.CreatedBy, &req.DecidedBy, &req.DecidedAt, &req.RejectionReason,
		&req.CancelledBy, &req.CancelledAt, &req.ProcessedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if reason != nil {
		req.Reason = *reason
	}
	return req, err
}

// Create implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) Create(ctx context.Context, request leave.LeaveRequest) (leave.LeaveRequest, error) {
	q := GetQuerier(ctx, r.db)
	query := `
		INSERT INTO leave_requests (id, employee_id, leave_type, period, start_date, end_date, total_days, reason, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		RETURNING ` + requestColumns

	created, err := scanRequest(q.QueryRow(ctx, query,
		request.ID, request.EmployeeID, request.LeaveType, request.Period,
		request.StartDate, request.EndDate, request.TotalDays, request.Reason,
		string(request.Status), request.CreatedBy,
	))
	if err != nil {
		return leave.LeaveRequest{}, leave.Storage("create leave request", err)
	}
	return created, nil
}

// GetByID implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) GetByID(ctx context.Context, id string) (leave.LeaveRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return leave.LeaveRequest{}, leave.ErrRequestNotFound
	}

	q := GetQuerier(ctx, r.db)
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE id = $1`

	req, err := scanRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.LeaveRequest{}, leave.ErrRequestNotFound
		}
		return leave.LeaveRequest{}, leave.Storage("get leave request", err)
	}
	return req, nil
}

// FindOverlapping implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) FindOverlapping(ctx context.Context, employeeID string, start, end time.Time, excludeID string) ([]leave.LeaveRequest, error) {
	q := GetQuerier(ctx, r.db)
	query := `SELECT ` + requestColumns + `
		FROM leave_requests
		WHERE employee_id = $1
			AND status IN ('pending', 'approved', 'processed')
			AND start_date <= $3
			AND end_date >= $2`
	args := []interface{}{employeeID, start, end}

	if excludeID != "" {
		if _, err := uuid.Parse(excludeID); err == nil {
			query += " AND id <> $4"
			args = append(args, excludeID)
		}
	}
	query += " ORDER BY start_date ASC, id ASC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, leave.Storage("find overlapping leave requests", err)
	}
	defer rows.Close()

	var found []leave.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, leave.Storage("scan leave request", err)
		}
		found = append(found, req)
	}
	if err := rows.Err(); err != nil {
		return nil, leave.Storage("find overlapping leave requests", err)
	}
	return found, nil
}

// Transition implements leave.RequestRepository as a compare-and-set on status.
func (r *leaveRequestRepositoryImpl) Transition(ctx context.Context, t leave.StatusTransition) (leave.LeaveRequest, error) {
	if _, err := uuid.Parse(t.RequestID); err != nil {
		return leave.LeaveRequest{}, leave.ErrRequestNotFound
	}

	q := GetQuerier(ctx, r.db)

	sets := []string{"status = $3", "updated_at = NOW()"}
	args := []interface{}{t.RequestID, string(t.From), string(t.To)}
	argIdx := 4

	switch t.To {
	case leave.StatusApproved, leave.StatusRejected:
		sets = append(sets, fmt.Sprintf("decided_by = $%d", argIdx), fmt.Sprintf("decided_at = $%d", argIdx+1))
		args = append(args, t.ActorID, t.At)
		argIdx += 2
		if t.To == leave.StatusRejected {
			sets = append(sets, fmt.Sprintf("rejection_reason = $%d", argIdx))
			args = append(args, t.Reason)
		}
	case leave.StatusCancelled:
		sets = append(sets, fmt.Sprintf("cancelled_by = $%d", argIdx), fmt.Sprintf("cancelled_at = $%d", argIdx+1))
		args = append(args, t.ActorID, t.At)
	case leave.StatusProcessed:
		sets = append(sets, fmt.Sprintf("processed_at = $%d", argIdx))
		args = append(args, t.At)
	}

	query := fmt.Sprintf(`
		UPDATE leave_requests
		SET %s
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, strings.Join(sets, ", "), requestColumns)

	updated, err := scanRequest(q.QueryRow(ctx, query, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveRequest{}, leave.Storage("transition leave request", err)
	}

	var current leave.RequestStatus
	err = q.QueryRow(ctx, `SELECT status FROM leave_requests WHERE id = $1`, t.RequestID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.LeaveRequest{}, leave.ErrRequestNotFound
		}
		return leave.LeaveRequest{}, leave.Storage("get leave request status", err)
	}
	return leave.LeaveRequest{}, &leave.TransitionError{RequestID: t.RequestID, From: current, Operation: t.Operation()}
}

// List implements leave.RequestRepository. The date window matches requests
// whose range intersects it.
func (r *leaveRequestRepositoryImpl) List(ctx context.Context, filter leave.LeaveRequestFilter) ([]leave.LeaveRequest, int64, error) {
	q := GetQuerier(ctx, r.db)

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.EmployeeID != nil {
		if _, err := uuid.Parse(*filter.EmployeeID); err != nil {
			return []leave.LeaveRequest{}, 0, nil
		}
		whereClause += fmt.Sprintf(" AND employee_id = $%d", argIndex)
		args = append(args, *filter.EmployeeID)
		argIndex++
	}
	if filter.Status != nil {
		whereClause += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.LeaveType != nil {
		whereClause += fmt.Sprintf(" AND leave_type = $%d", argIndex)
		args = append(args, *filter.LeaveType)
		argIndex++
	}
	if filter.StartDate != nil {
		whereClause += fmt.Sprintf(" AND end_date >= $%d::date", argIndex)
		args = append(args, *filter.StartDate)
		argIndex++
	}
	if filter.EndDate != nil {
		whereClause += fmt.Sprintf(" AND start_date <= $%d::date", argIndex)
		args = append(args, *filter.EndDate)
		argIndex++
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM leave_requests " + whereClause
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, leave.Storage("count leave requests", err)
	}

	// sort_by is whitelisted by LeaveRequestFilter.Validate.
	sortBy := "created_at"
	switch filter.SortBy {
	case "start_date", "end_date", "status", "created_at":
		sortBy = filter.SortBy
	}
	sortOrder := "DESC"
	if filter.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s
		FROM leave_requests
		%s
		ORDER BY %s %s, id %s
		LIMIT $%d OFFSET $%d`,
		requestColumns, whereClause, sortBy, sortOrder, sortOrder, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset())

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, leave.Storage("list leave requests", err)
	}
	defer rows.Close()

	requests := make([]leave.LeaveRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, leave.Storage("scan leave request", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, leave.Storage("list leave requests", err)
	}

	return requests, total, nil
}

// LockEmployee implements leave.RequestRepository with a transaction-scoped
// advisory lock.
func (r *leaveRequestRepositoryImpl) LockEmployee(ctx context.Context, employeeID string) error {
	q := GetQuerier(ctx, r.db)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "leave-employee:"+employeeID); err != nil {
		return leave.Storage("lock employee", err)
	}
	return nil
}
