package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var (
		rangeErr        *leave.RangeError
		overlapErr      *leave.OverlapError
		insufficientErr *leave.InsufficientBalanceError
		transitionErr   *leave.TransitionError
	)

	switch {
	case errors.As(err, &rangeErr):
		BadRequest(w, "Invalid leave date range", map[string]string{"range": rangeErr.Reason})
	case errors.As(err, &overlapErr):
		Conflict(w, "Leave request overlaps an existing request", map[string]string{
			"conflicting_request_id": overlapErr.ConflictingRequestID,
		})
	case errors.As(err, &insufficientErr):
		UnprocessableEntity(w, "INSUFFICIENT_BALANCE", "Insufficient leave balance", map[string]string{
			"available": insufficientErr.Available.String(),
			"requested": insufficientErr.Requested.String(),
		})
	case errors.As(err, &transitionErr):
		Conflict(w, "Leave request cannot be changed in its current status", map[string]string{
			"status":    string(transitionErr.From),
			"operation": transitionErr.Operation,
		})

	// Identity errors
	case errors.Is(err, employee.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")
	case errors.Is(err, user.ErrMissingIdentity):
		Unauthorized(w, "Missing user identity")
	case errors.Is(err, leave.ErrUnauthorized):
		Forbidden(w, err.Error())

	// Leave domain errors
	case errors.Is(err, leave.ErrRequestNotFound):
		NotFound(w, "Leave request not found")
	case errors.Is(err, leave.ErrBalanceNotFound):
		NotFound(w, "Leave balance not found")
	case errors.Is(err, leave.ErrLeaveTypeNotFound):
		NotFound(w, "Leave type not found")
	case errors.Is(err, leave.ErrNotFound):
		NotFound(w, "Not found")
	case errors.Is(err, leave.ErrInvalidRange):
		BadRequest(w, "Invalid leave date range", nil)
	case errors.Is(err, leave.ErrStorage):
		slog.Error("leave storage unavailable", "error", err)
		ServiceUnavailable(w, "Leave storage is temporarily unavailable, retry later")

	// Default
	default:
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
