package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRange        = errors.New("invalid leave date range")
	ErrOverlappingRequest  = errors.New("leave request overlaps an existing request")
	ErrInsufficientBalance = errors.New("insufficient leave balance")
	ErrInvalidTransition   = errors.New("invalid leave request status transition")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("not authorized for this leave operation")
	ErrStorage             = errors.New("leave storage unavailable")

	ErrRequestNotFound   = fmt.Errorf("leave request %w", ErrNotFound)
	ErrBalanceNotFound   = fmt.Errorf("leave balance %w", ErrNotFound)
	ErrLeaveTypeNotFound = fmt.Errorf("leave type %w", ErrNotFound)

	ErrBalanceUnderflow = errors.New("leave balance counter would become negative")
)

type RangeError struct {
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRange, e.Reason)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

type OverlapError struct {
	ConflictingRequestID string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: %s", ErrOverlappingRequest, e.ConflictingRequestID)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlappingRequest
}

type InsufficientBalanceError struct {
	Key       BalanceKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s for %s: available %s, requested %s", ErrInsufficientBalance, e.Key, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type TransitionError struct {
	RequestID string
	From      RequestStatus
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s request %s in status %s", ErrInvalidTransition, e.Operation, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Storage wraps a persistence failure so it matches ErrStorage while keeping the cause.
func Storage(op string, err error) error {
	if err == nil || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
