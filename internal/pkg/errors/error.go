package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict: resource already exists")
	ErrInternal     = errors.New("internal server error")
	ErrBadRequest   = errors.New("bad request")
)

// Entitlement and billing domain errors. Handlers rely on these being
// distinguishable so the UI can explain exactly why an operation failed.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrCouponNotFound      = errors.New("coupon code does not exist")
	ErrDistributorNotFound = errors.New("distributor not found")

	ErrInvalidState        = errors.New("operation not allowed in current account state")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponNotYetValid   = errors.New("coupon not yet valid")
	ErrInsufficientCredits = errors.New("insufficient distributor credits")
	ErrLimitExceeded       = errors.New("usage limit exceeded")

	ErrPlanInUse     = errors.New("plan is referenced by existing accounts")
	ErrPlanIsDefault = errors.New("cannot delete a default plan")

	// Returned when a serializable transaction could not commit after the
	// bounded number of retries.
	ErrConflictRetryExhausted = errors.New("transaction conflict: retries exhausted")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
