package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

// HashClient is the minimal client surface used by RedisCatalog.
type HashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisCatalog validates product ids against product records the catalog
// service maintains in Redis hashes (name, price, available under
// "<prefix><id>"). The contract is all-or-nothing: one entry per requested
// id or a wholesale failure.
type RedisCatalog struct {
	client    HashClient
	keyPrefix string
}

// NewRedisCatalog constructs a Redis-backed catalog client.
func NewRedisCatalog(client HashClient, keyPrefix string) *RedisCatalog {
	if keyPrefix == "" {
		keyPrefix = "product:"
	}
	return &RedisCatalog{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Validate resolves every requested id to its catalog record.
func (c *RedisCatalog) Validate(ctx context.Context, productIDs []string) ([]orders.Product, error) {
	out := make([]orders.Product, 0, len(productIDs))

	for _, id := range productIDs {
		fields, err := c.client.HGetAll(ctx, c.keyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", orders.ErrCatalogUnavailable, err)
		}
		if len(fields) == 0 {
			return nil, &orders.ProductNotFoundError{ProductID: id}
		}

		product, err := parseProduct(id, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, product)
	}

	return out, nil
}

func parseProduct(id string, fields map[string]string) (orders.Product, error) {
	product := orders.Product{
		ID:   id,
		Name: fields["name"],
	}

	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return orders.Product{}, fmt.Errorf("%w: product %s has malformed price %q", orders.ErrCatalogUnavailable, id, fields["price"])
	}
	product.Price = price

	if raw, ok := fields["available"]; ok {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			return orders.Product{}, fmt.Errorf("%w: product %s has malformed availability %q", orders.ErrCatalogUnavailable, id, raw)
		}
		product.Available = available
	}

	return product, nil
}
