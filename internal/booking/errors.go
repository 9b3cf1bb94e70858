package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest       = errors.New("invalid booking request")
	ErrRateUnavailable      = errors.New("rate is no longer available")
	ErrPriceChanged         = errors.New("price has changed")
	ErrSupplierRejected     = errors.New("supplier rejected the booking")
	ErrSupplierUnavailable  = errors.New("supplier booking outcome unknown")
	ErrBookingInProgress    = errors.New("booking with this idempotency key is in progress")
	ErrNotCancellable       = errors.New("booking cannot be cancelled")
	ErrSupplierCancelFailed = errors.New("supplier cancellation failed")
	ErrPaymentNotAllowed    = errors.New("payment cannot be initiated for this booking")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrCallbackMismatch     = errors.New("callback does not match payment")
)

// PendingError reports a booking whose supplier outcome is not known yet.
// The reference lets the client poll while the reconciler resolves it.
type PendingError struct {
	Reference string
	Err       error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("booking %s pending: %v", e.Reference, e.Err)
}

func (e *PendingError) Unwrap() []error {
	return []error{ErrSupplierUnavailable, e.Err}
}
