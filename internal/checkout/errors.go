package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrPaymentModeUnavailable = errors.New("payment mode is not available")
	ErrMissingAddress         = errors.New("missing address details")
	ErrBuyerUnresolved        = errors.New("user not identified")
	ErrInvalidPhone           = errors.New("phone number must be numeric")
	ErrInvalidPostalCode      = errors.New("pincode must be numeric")
	ErrNoSellableItems        = errors.New("missing shop information")
	ErrOrderPlacement         = errors.New("failed to place order")
)

// ValidationError is a checkout precondition failure. No order was sent.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, detail string) error {
	return &ValidationError{Err: err, Detail: detail}
}

// IsValidation reports whether err is a precondition failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PlacementError is a failed submission. Message is what the buyer is shown.
// It matches both ErrOrderPlacement and the underlying cause.
type PlacementError struct {
	Message string
	Err     error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("%s: %s", ErrOrderPlacement, e.Message)
}

func (e *PlacementError) Unwrap() []error { return []error{ErrOrderPlacement, e.Err} }
