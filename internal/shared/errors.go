package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates a referenced document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a decrement larger than the batch quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAlreadyFinalState indicates the operation is not valid for the current status.
	ErrAlreadyFinalState = errors.New("operation not allowed in current state")
	// ErrLimitReached indicates the tenant subscription quota is exhausted.
	ErrLimitReached = errors.New("subscription limit reached")
	// ErrPermissionDenied indicates the actor lacks the required access level.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates the record already exists.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrUnauthenticated indicates a missing or unknown session.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// InsufficientStockError names the item and batch that could not cover a decrement.
type InsufficientStockError struct {
	StockItemID string
	BatchNumber string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s batch %s: available %s, requested %s",
		e.StockItemID, e.BatchNumber, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// NotFoundf wraps ErrNotFound with a description of the missing entity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Invalidf wraps ErrValidation with a description of the invalid input.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return stockErr.Error()
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyFinalState),
		errors.Is(err, ErrLimitReached),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicate):
		return err.Error()
	case errors.Is(err, ErrPermissionDenied):
		return "You do not have access to perform this action."
	case errors.Is(err, ErrUnauthenticated):
		return "Authentication required."
	default:
		return "An unexpected error occurred."
	}
}
