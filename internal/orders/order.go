package orders

import (
	"math"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPaid          Status = "PAID"
	StatusDelivered     Status = "DELIVERED"
	StatusCancelled     Status = "CANCELLED"
	StatusRefunded      Status = "REFUNDED"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
)

// transitions is the legal outbound edge set per status. Statuses absent
// from the map are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled, StatusPaymentFailed},
	StatusPaid:    {StatusDelivered, StatusRefunded},
}

// ParseStatus maps a raw string onto a known Status.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusPaid, StatusDelivered, StatusCancelled, StatusRefunded, StatusPaymentFailed:
		return Status(raw), true
	}
	return "", false
}

// Terminal reports whether the status has no outbound transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether next is a legal transition from s.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is a priced line of an order. Items are immutable once the
// order is persisted.
type OrderItem struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	UnitPrice float64
}

// Receipt is created exactly once, at the paid transition, and never updated.
type Receipt struct {
	OrderID    string
	ReceiptURL string
	CreatedAt  time.Time
}

// Order is the aggregate root. Totals are derived from the items and never
// taken from input.
type Order struct {
	ID               string
	RequesterID      string
	Status           Status
	TotalAmount      float64
	TotalItems       int
	Paid             bool
	PaidAt           *time.Time
	PaymentReference string
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewOrder assembles a pending order from priced items, recomputing totals.
func NewOrder(id, requesterID string, items []OrderItem, now time.Time) Order {
	order := Order{
		ID:          id,
		RequesterID: requesterID,
		Status:      StatusPending,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range items {
		order.TotalAmount += item.UnitPrice * float64(item.Quantity)
		order.TotalItems += item.Quantity
	}
	order.TotalAmount = roundCents(order.TotalAmount)
	return order
}

// MarkPaid performs the paid transition. It is valid only from PENDING; the
// receipt it returns must be persisted in the same atomic unit as the order.
func (o *Order) MarkPaid(paymentReference, receiptURL string, now time.Time) (Receipt, error) {
	if o.Status != StatusPending {
		return Receipt{}, &TransitionError{OrderID: o.ID, From: o.Status, To: StatusPaid}
	}

	o.Status = StatusPaid
	o.Paid = true
	paidAt := now
	o.PaidAt = &paidAt
	o.PaymentReference = paymentReference
	o.UpdatedAt = now

	return Receipt{
		OrderID:    o.ID,
		ReceiptURL: receiptURL,
		CreatedAt:  now,
	}, nil
}

// ChangeStatus applies a guarded transition. Re-applying the current status
// is a no-op success that does not bump UpdatedAt, so redelivered events are
// harmless. The paid transition carries payment data and must go through
// MarkPaid instead.
func (o *Order) ChangeStatus(next Status, now time.Time) error {
	if next == o.Status {
		return nil
	}
	if next == StatusPaid {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: next}
	}
	if !o.Status.CanTransition(next) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: next}
	}
	if next == StatusDelivered && !o.Paid {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: next}
	}

	o.Status = next
	o.UpdatedAt = now
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
