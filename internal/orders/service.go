package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// UnknownProductName is substituted when the catalog no longer recognizes a
// product referenced by a stored order item.
const UnknownProductName = "Unknown Product"

// CreateOrderResult is the composite outcome of the creation saga. SessionErr
// is set when the order was durably created but the payment session could
// not be opened; the order stays PENDING and payable later.
type CreateOrderResult struct {
	Order      Order
	Session    PaymentSession
	SessionErr error
}

// OrderService runs the order creation saga and the read side.
type OrderService struct {
	catalog  CatalogClient
	payments PaymentClient
	store    OrderStore
	notifier StatusNotifier
	newID    func() string
	now      func() time.Time
	log      *slog.Logger
}

// NewOrderService constructs an OrderService. notifier may be nil. A nil
// catalog or payment client falls back to the noop stubs. newID and now may
// be nil, defaulting to uuid generation and wall-clock time.
func NewOrderService(catalog CatalogClient, payments PaymentClient, store OrderStore, notifier StatusNotifier, newID func() string, now func() time.Time) *OrderService {
	if catalog == nil {
		catalog = &NoopCatalogClient{}
	}
	if payments == nil {
		payments = &NoopPaymentClient{}
	}
	if newID == nil {
		newID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		catalog:  catalog,
		payments: payments,
		store:    store,
		notifier: notifier,
		newID:    newID,
		now:      now,
		log:      slog.Default(),
	}
}

// CreateOrder turns a cart into a persisted, payable order.
//
// Steps are strictly ordered and never retried here: validate against the
// catalog (no side effects on failure), price the lines from the catalog
// response, persist atomically (the durability commit point), then open the
// payment session. A session failure after the commit point is reported in
// the result instead of rolling back the order.
func (s *OrderService) CreateOrder(ctx context.Context, requesterID string, lines []OrderLine) (CreateOrderResult, error) {
	var res CreateOrderResult

	if err := ValidateOrderLines(lines); err != nil {
		return res, err
	}

	products, err := s.catalog.Validate(ctx, dedupeProductIDs(lines))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, wrapTimeout(err)
		}
		if errors.Is(err, ErrProductValidation) || errors.Is(err, ErrCatalogUnavailable) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", ErrProductValidation, err)
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return res, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !product.Available {
			return res, &ProductUnavailableError{ProductID: line.ProductID}
		}
		items = append(items, OrderItem{
			ID:        s.newID(),
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
	}

	order := NewOrder(s.newID(), requesterID, items, s.now())
	created, err := s.store.Create(ctx, order)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, wrapTimeout(err)
		}
		return res, fmt.Errorf("%w: %v", ErrOrderPersistence, err)
	}
	res.Order = created
	s.notify(created.ID, created.Status, created.CreatedAt)

	session, err := s.payments.OpenSession(ctx, created)
	if err != nil {
		res.SessionErr = &PaymentSessionError{OrderID: created.ID, Err: err}
		s.log.Warn("payment session failed after order creation",
			"order_id", created.ID, "error", err)
		return res, nil
	}
	res.Session = session

	return res, nil
}

// ChangeOrderStatus applies a guarded transition on behalf of a caller. The
// metadata annex lands on the audit trail, never on the aggregate itself.
func (s *OrderService) ChangeOrderStatus(ctx context.Context, orderID string, next Status, meta StatusMetadata) (Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, wrapTimeout(err)
	}

	if err := order.ChangeStatus(next, s.now()); err != nil {
		return Order{}, err
	}

	updated, err := s.store.ChangeStatus(ctx, orderID, next, meta)
	if err != nil {
		return Order{}, wrapTimeout(err)
	}
	s.notify(updated.ID, updated.Status, updated.UpdatedAt)
	return updated, nil
}

// FindOne loads an order and enriches its items with current catalog names.
// Catalog drift or downtime degrades the names, never the read.
func (s *OrderService) FindOne(ctx context.Context, orderID string) (Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, wrapTimeout(err)
	}
	if len(order.Items) == 0 {
		return order, nil
	}

	ids := make([]string, 0, len(order.Items))
	seen := make(map[string]struct{}, len(order.Items))
	for _, item := range order.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	names := make(map[string]string, len(ids))
	products, err := s.catalog.Validate(ctx, ids)
	if err != nil {
		s.log.Warn("catalog enrichment failed, serving stored names",
			"order_id", orderID, "error", err)
	} else {
		for _, p := range products {
			names[p.ID] = p.Name
		}
	}

	for i := range order.Items {
		if name, ok := names[order.Items[i].ProductID]; ok && name != "" {
			order.Items[i].Name = name
		} else if order.Items[i].Name == "" {
			order.Items[i].Name = UnknownProductName
		}
	}
	return order, nil
}

// FindAll is a pass-through paginated listing.
func (s *OrderService) FindAll(ctx context.Context, filter ListFilter, page, limit int) (OrderPage, error) {
	if err := ValidatePagination(page, limit); err != nil {
		return OrderPage{}, err
	}
	result, err := s.store.FindAll(ctx, filter, page, limit)
	if err != nil {
		return OrderPage{}, wrapTimeout(err)
	}
	return result, nil
}

func (s *OrderService) notify(orderID string, status Status, at time.Time) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyStatus(orderID, status, at)
}

func dedupeProductIDs(lines []OrderLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
