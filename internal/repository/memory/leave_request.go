package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
)

type leaveRequestRepository struct {
	store *Store
	now   func() time.Time
}

func NewLeaveRequestRepository(store *Store) leave.RequestRepository {
	return &leaveRequestRepository{store: store, now: time.Now}
}

func (r *leaveRequestRepository) Create(ctx context.Context, request leave.LeaveRequest) (leave.LeaveRequest, error) {
	err := r.store.write(ctx, func() error {
		if err := r.store.check("request.create"); err != nil {
			return err
		}
		if _, exists := r.store.requests[request.ID]; exists {
			return leave.Storage("request.create", fmt.Errorf("request %s already exists", request.ID))
		}
		now := r.now()
		request.CreatedAt = now
		request.UpdatedAt = now
		r.store.requests[request.ID] = request
		return nil
	})
	return request, err
}

func (r *leaveRequestRepository) GetByID(ctx context.Context, id string) (leave.LeaveRequest, error) {
	var req leave.LeaveRequest
	err := r.store.read(ctx, func() error {
		if err := r.store.check("request.get"); err != nil {
			return err
		}
		found, ok := r.store.requests[id]
		if !ok {
			return leave.ErrRequestNotFound
		}
		req = found
		return nil
	})
	return req, err
}

func (r *leaveRequestRepository) FindOverlapping(ctx context.Context, employeeID string, start, end time.Time, excludeID string) ([]leave.LeaveRequest, error) {
	var found []leave.LeaveRequest
	err := r.store.read(ctx, func() error {
		if err := r.store.check("request.find_overlapping"); err != nil {
			return err
		}
		for _, req := range r.store.requests {
			if req.EmployeeID != employeeID || req.ID == excludeID {
				continue
			}
			if req.Status.Active() && req.Overlaps(start, end) {
				found = append(found, req)
			}
		}
		return nil
	})
	sort.Slice(found, func(i, j int) bool {
		if !found[i].StartDate.Equal(found[j].StartDate) {
			return found[i].StartDate.Before(found[j].StartDate)
		}
		return found[i].ID < found[j].ID
	})
	return found, err
}

func (r *leaveRequestRepository) Transition(ctx context.Context, t leave.StatusTransition) (leave.LeaveRequest, error) {
	var updated leave.LeaveRequest
	err := r.store.write(ctx, func() error {
		if err := r.store.check("request.transition"); err != nil {
			return err
		}
		req, ok := r.store.requests[t.RequestID]
		if !ok {
			return leave.ErrRequestNotFound
		}
		if req.Status != t.From {
			return &leave.TransitionError{RequestID: req.ID, From: req.Status, Operation: t.Operation()}
		}

		applyTransition(&req, t)
		req.UpdatedAt = r.now()
		r.store.requests[req.ID] = req
		updated = req
		return nil
	})
	return updated, err
}

func (r *leaveRequestRepository) List(ctx context.Context, filter leave.LeaveRequestFilter) ([]leave.LeaveRequest, int64, error) {
	var matched []leave.LeaveRequest
	err := r.store.read(ctx, func() error {
		if err := r.store.check("request.list"); err != nil {
			return err
		}
		for _, req := range r.store.requests {
			if matchesFilter(req, filter) {
				matched = append(matched, req)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sortRequests(matched, filter.SortBy, filter.SortOrder == "asc")

	total := int64(len(matched))
	offset := filter.Offset()
	if offset >= len(matched) {
		return []leave.LeaveRequest{}, total, nil
	}
	end := offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// LockEmployee is a no-op: a transaction already owns the whole store.
func (r *leaveRequestRepository) LockEmployee(ctx context.Context, employeeID string) error {
	return nil
}

func matchesFilter(req leave.LeaveRequest, f leave.LeaveRequestFilter) bool {
	if f.EmployeeID != nil && req.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.Status != nil && string(req.Status) != *f.Status {
		return false
	}
	if f.LeaveType != nil && req.LeaveType != *f.LeaveType {
		return false
	}
	// A request matches the window when the two ranges intersect.
	if f.StartDate != nil {
		if from, err := time.Parse(leave.DateLayout, *f.StartDate); err == nil && req.EndDate.Before(from) {
			return false
		}
	}
	if f.EndDate != nil {
		if to, err := time.Parse(leave.DateLayout, *f.EndDate); err == nil && req.StartDate.After(to) {
			return false
		}
	}
	return true
}

func sortRequests(reqs []leave.LeaveRequest, sortBy string, asc bool) {
	less := func(a, b leave.LeaveRequest) int {
		switch sortBy {
		case "start_date":
			return a.StartDate.Compare(b.StartDate)
		case "end_date":
			return a.EndDate.Compare(b.EndDate)
		case "status":
			switch {
			case a.Status < b.Status:
				return -1
			case a.Status > b.Status:
				return 1
			}
			return 0
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.SliceStable(reqs, func(i, j int) bool {
		c := less(reqs[i], reqs[j])
		if c == 0 {
			// UUIDv7 ids are time ordered, which keeps pages stable.
			if asc {
				return reqs[i].ID < reqs[j].ID
			}
			return reqs[i].ID > reqs[j].ID
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func applyTransition(req *leave.LeaveRequest, t leave.StatusTransition) {
	actor := t.ActorID
	at := t.At
	req.Status = t.To
	switch t.To {
	case leave.StatusApproved:
		req.DecidedBy = &actor
		req.DecidedAt = &at
	case leave.StatusRejected:
		req.DecidedBy = &actor
		req.DecidedAt = &at
		req.RejectionReason = t.Reason
	case leave.StatusCancelled:
		req.CancelledBy = &actor
		req.CancelledAt = &at
	case leave.StatusProcessed:
		req.ProcessedAt = &at
	}
}
