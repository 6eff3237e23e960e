package orders

import (
	"context"
	"time"
)

// Product is the catalog's authoritative record for a product id.
type Product struct {
	ID        string
	Name      string
	Price     float64
	Available bool
}

// CatalogClient validates product ids against the catalog service. The
// contract is all-or-nothing: exactly one entry per distinct requested id,
// or a wholesale failure. Partial results are not a supported outcome.
type CatalogClient interface {
	Validate(ctx context.Context, productIDs []string) ([]Product, error)
}

// PaymentSession is the provider's handle for collecting payment on an order.
type PaymentSession struct {
	ID          string
	RedirectURL string
}

// PaymentClient opens payment sessions. The order id is the natural
// correlation key; implementations may deduplicate on it but are not
// required to.
type PaymentClient interface {
	OpenSession(ctx context.Context, order Order) (PaymentSession, error)
}

// StatusMetadata is the audit annex attached to a status change. It never
// flows into the aggregate's core fields.
type StatusMetadata map[string]string

// PageMeta describes an offset-paginated result set.
type PageMeta struct {
	Total    int
	Page     int
	LastPage int
}

// OrderPage is one page of orders plus pagination metadata.
type OrderPage struct {
	Data []Order
	Meta PageMeta
}

// ListFilter narrows a paginated listing.
type ListFilter struct {
	Status *Status
}

// OrderStore is the persistence boundary for orders.
//
// Create persists the order header and all items as one atomic unit.
// MarkPaid persists the paid transition and the receipt as one atomic unit
// and must be safe to invoke twice with the same arguments: the second
// invocation returns the current state without a duplicate receipt.
// ChangeStatus persists a transition the caller already validated, applying
// the aggregate guard under a per-order lock so racing events converge on a
// single outcome. Pagination is offset-based and 1-indexed; limit capping is
// the caller's concern.
type OrderStore interface {
	Create(ctx context.Context, order Order) (Order, error)
	MarkPaid(ctx context.Context, orderID, paymentReference, receiptURL string) (Order, error)
	ChangeStatus(ctx context.Context, orderID string, next Status, meta StatusMetadata) (Order, error)
	FindByID(ctx context.Context, orderID string) (Order, error)
	FindAll(ctx context.Context, filter ListFilter, page, limit int) (OrderPage, error)
}

// StatusNotifier receives order status changes for live feeds. Notification
// is best effort and must never block or fail order processing.
type StatusNotifier interface {
	NotifyStatus(orderID string, status Status, at time.Time)
}
