package orders

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound signals the order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrInvalidTransition signals a state machine violation.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrProductValidation signals the catalog could not validate the requested products.
var ErrProductValidation = errors.New("product validation failed")

// ErrProductUnavailable signals a requested product is not available for sale.
var ErrProductUnavailable = errors.New("product unavailable")

// ErrCatalogUnavailable signals the catalog could not be reached.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// ErrPaymentSession signals the payment provider refused to open a session.
var ErrPaymentSession = errors.New("payment session failed")

// ErrOrderPersistence signals the store rejected the order write.
var ErrOrderPersistence = errors.New("order persistence failed")

// ErrTimeout signals a deadline expired while waiting on an external call.
var ErrTimeout = errors.New("operation timed out")

// TransitionError reports an illegal status transition for a specific order.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ProductNotFoundError reports a product id the catalog does not recognize.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found in catalog", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductValidation }

// ProductUnavailableError names the product that blocked order creation.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

func (e *ProductUnavailableError) Unwrap() error { return ErrProductUnavailable }

// PaymentSessionError carries the order whose session could not be opened.
// The order is durable at that point, so callers retry the session against
// the existing order id rather than recreating the order.
type PaymentSessionError struct {
	OrderID string
	Err     error
}

func (e *PaymentSessionError) Error() string {
	return fmt.Sprintf("payment session for order %s: %v", e.OrderID, e.Err)
}

func (e *PaymentSessionError) Unwrap() error { return ErrPaymentSession }

// ValidationError reports malformed input rejected before the saga runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// wrapTimeout maps an expired context onto ErrTimeout, leaving other errors
// untouched.
func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
