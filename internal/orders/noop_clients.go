package orders

import "context"

// NoopCatalogClient is a stub CatalogClient that accepts every product.
type NoopCatalogClient struct{}

func (n *NoopCatalogClient) Validate(ctx context.Context, productIDs []string) ([]Product, error) {
	out := make([]Product, len(productIDs))
	for i, id := range productIDs {
		out[i] = Product{ID: id, Name: id, Available: true}
	}
	return out, nil
}

// NoopPaymentClient is a stub PaymentClient that always opens a session.
type NoopPaymentClient struct{}

func (n *NoopPaymentClient) OpenSession(ctx context.Context, order Order) (PaymentSession, error) {
	return PaymentSession{ID: "noop-" + order.ID}, nil
}
