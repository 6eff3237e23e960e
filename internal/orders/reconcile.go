package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PaymentSucceeded reports a completed payment for an order.
type PaymentSucceeded struct {
	OrderID    string
	PaymentID  string
	Amount     float64
	PaidAt     time.Time
	ChargeID   string
	ReceiptURL string
}

// PaymentCancelled reports a payment the customer or provider cancelled.
type PaymentCancelled struct {
	OrderID     string
	PaymentID   string
	CancelledAt time.Time
	Reason      string
}

// PaymentRefunded reports a refund issued against a paid order.
type PaymentRefunded struct {
	OrderID    string
	PaymentID  string
	RefundID   string
	Amount     float64
	RefundedAt time.Time
	Reason     string
}

// PaymentFailed reports a payment attempt that failed.
type PaymentFailed struct {
	OrderID       string
	PaymentID     string
	FailureReason string
}

// Reconciler applies payment outcome events onto order state. Events are
// fire-and-forget with no waiting caller: state machine violations and
// missing orders are logged and absorbed, while store connectivity failures
// are returned so the transport can alert and redeliver.
type Reconciler struct {
	store    OrderStore
	notifier StatusNotifier
	log      *slog.Logger
	now      func() time.Time
}

// NewReconciler constructs a Reconciler. notifier and log may be nil.
func NewReconciler(store OrderStore, notifier StatusNotifier, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// HandleSucceeded drives the paid transition. A redelivered event finds the
// order already PAID and is a no-op success.
func (r *Reconciler) HandleSucceeded(ctx context.Context, ev PaymentSucceeded) error {
	order, err := r.store.FindByID(ctx, ev.OrderID)
	if err != nil {
		return r.absorb(ctx, "payment.succeeded", ev.OrderID, err)
	}
	if order.Status == StatusPaid {
		r.log.InfoContext(ctx, "order already paid, ignoring redelivery",
			"order_id", ev.OrderID, "payment_id", ev.PaymentID)
		return nil
	}

	reference := ev.ChargeID
	if reference == "" {
		reference = ev.PaymentID
	}

	updated, err := r.store.MarkPaid(ctx, ev.OrderID, reference, ev.ReceiptURL)
	if err != nil {
		return r.absorb(ctx, "payment.succeeded", ev.OrderID, err)
	}
	r.notify(updated)
	return nil
}

// HandleCancelled cancels a pending order.
func (r *Reconciler) HandleCancelled(ctx context.Context, ev PaymentCancelled) error {
	meta := StatusMetadata{
		"reason":       ev.Reason,
		"payment_id":   ev.PaymentID,
		"cancelled_at": ev.CancelledAt.UTC().Format(time.RFC3339),
	}
	return r.transition(ctx, "payment.cancelled", ev.OrderID, StatusCancelled, meta)
}

// HandleFailed cancels a pending order, tagging the audit trail so a failed
// payment is distinguishable from a customer cancellation.
func (r *Reconciler) HandleFailed(ctx context.Context, ev PaymentFailed) error {
	meta := StatusMetadata{
		"reason":     "payment_failed: " + ev.FailureReason,
		"payment_id": ev.PaymentID,
	}
	return r.transition(ctx, "payment.failed", ev.OrderID, StatusCancelled, meta)
}

// HandleRefunded moves a paid order to REFUNDED.
func (r *Reconciler) HandleRefunded(ctx context.Context, ev PaymentRefunded) error {
	meta := StatusMetadata{
		"reason":      ev.Reason,
		"payment_id":  ev.PaymentID,
		"refund_id":   ev.RefundID,
		"refunded_at": ev.RefundedAt.UTC().Format(time.RFC3339),
	}
	return r.transition(ctx, "payment.refunded", ev.OrderID, StatusRefunded, meta)
}

func (r *Reconciler) transition(ctx context.Context, event, orderID string, next Status, meta StatusMetadata) error {
	order, err := r.store.FindByID(ctx, orderID)
	if err != nil {
		return r.absorb(ctx, event, orderID, err)
	}
	if order.Status == next {
		r.log.InfoContext(ctx, "order already in target status, ignoring redelivery",
			"event", event, "order_id", orderID, "status", string(next))
		return nil
	}
	if err := order.ChangeStatus(next, r.now()); err != nil {
		return r.absorb(ctx, event, orderID, err)
	}

	updated, err := r.store.ChangeStatus(ctx, orderID, next, meta)
	if err != nil {
		return r.absorb(ctx, event, orderID, err)
	}
	r.notify(updated)
	return nil
}

// absorb swallows state machine violations and missing orders into warnings
// and lets everything else (store connectivity) propagate.
func (r *Reconciler) absorb(ctx context.Context, event, orderID string, err error) error {
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
		r.log.WarnContext(ctx, "payment event ignored",
			"event", event, "order_id", orderID, "error", err)
		return nil
	}
	return err
}

func (r *Reconciler) notify(order Order) {
	if r.notifier == nil {
		return
	}
	r.notifier.NotifyStatus(order.ID, order.Status, order.UpdatedAt)
}
