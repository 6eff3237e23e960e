package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewInMemoryCatalogClient constructs an in-memory catalog client.
func NewInMemoryCatalogClient() *InMemoryCatalogClient {
	return &InMemoryCatalogClient{
		products: make(map[string]Product),
	}
}

// InMemoryCatalogClient serves catalog lookups from a seeded map.
type InMemoryCatalogClient struct {
	mu       sync.Mutex
	products map[string]Product
}

// Seed registers or replaces products.
func (c *InMemoryCatalogClient) Seed(products ...Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		c.products[p.ID] = p
	}
}

func (c *InMemoryCatalogClient) Validate(ctx context.Context, productIDs []string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, ok := c.products[id]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		out = append(out, product)
	}
	return out, nil
}

// NewInMemoryPaymentClient constructs an in-memory payment client.
func NewInMemoryPaymentClient() *InMemoryPaymentClient {
	return &InMemoryPaymentClient{
		sessions: make(map[string]PaymentSession),
	}
}

// InMemoryPaymentClient tracks opened sessions in memory, one per order id.
type InMemoryPaymentClient struct {
	mu       sync.Mutex
	sessions map[string]PaymentSession
	err      error
}

// FailWith makes subsequent OpenSession calls return err.
func (c *InMemoryPaymentClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *InMemoryPaymentClient) OpenSession(ctx context.Context, order Order) (PaymentSession, error) {
	if err := ctx.Err(); err != nil {
		return PaymentSession{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return PaymentSession{}, c.err
	}
	if session, ok := c.sessions[order.ID]; ok {
		return session, nil
	}
	session := PaymentSession{
		ID:          "sess-" + order.ID,
		RedirectURL: "https://payments.local/session/sess-" + order.ID,
	}
	c.sessions[order.ID] = session
	return session, nil
}

// Session returns the session opened for an order, if any (for inspection).
func (c *InMemoryPaymentClient) Session(orderID string) (PaymentSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[orderID]
	return session, ok
}

// NewInMemoryOrderStore constructs an in-memory order store.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders:   make(map[string]Order),
		receipts: make(map[string]Receipt),
	}
}

// InMemoryOrderStore keeps orders and receipts under one mutex, which gives
// it the same per-order linearizability the Postgres store gets from row
// locks.
type InMemoryOrderStore struct {
	mu       sync.Mutex
	orders   map[string]Order
	receipts map[string]Receipt
	order    []string
	now      func() time.Time
}

func (s *InMemoryOrderStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *InMemoryOrderStore) Create(ctx context.Context, order Order) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
	s.order = append(s.order, order.ID)
	return order, nil
}

func (s *InMemoryOrderStore) MarkPaid(ctx context.Context, orderID, paymentReference, receiptURL string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if order.Status == StatusPaid {
		return cloneOrder(order), nil
	}

	receipt, err := order.MarkPaid(paymentReference, receiptURL, s.clock())
	if err != nil {
		return Order{}, err
	}
	s.orders[orderID] = order
	if _, exists := s.receipts[orderID]; !exists {
		s.receipts[orderID] = receipt
	}
	return cloneOrder(order), nil
}

func (s *InMemoryOrderStore) ChangeStatus(ctx context.Context, orderID string, next Status, meta StatusMetadata) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if err := order.ChangeStatus(next, s.clock()); err != nil {
		return Order{}, err
	}
	s.orders[orderID] = order
	return cloneOrder(order), nil
}

func (s *InMemoryOrderStore) FindByID(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *InMemoryOrderStore) FindAll(ctx context.Context, filter ListFilter, page, limit int) (OrderPage, error) {
	if err := ctx.Err(); err != nil {
		return OrderPage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Order, 0, len(s.order))
	for _, id := range s.order {
		order := s.orders[id]
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	lastPage := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return OrderPage{
		Data: matched[start:end],
		Meta: PageMeta{Total: total, Page: page, LastPage: lastPage},
	}, nil
}

// Receipt returns the receipt stored for an order, if any (for inspection).
func (s *InMemoryOrderStore) Receipt(orderID string) (Receipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	receipt, ok := s.receipts[orderID]
	return receipt, ok
}

func cloneOrder(order Order) Order {
	items := make([]OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	if order.PaidAt != nil {
		paidAt := *order.PaidAt
		order.PaidAt = &paidAt
	}
	return order
}
