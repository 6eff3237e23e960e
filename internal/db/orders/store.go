package ordersdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

// PostgresOrderStore persists orders, items, receipts, and the status audit
// trail in Postgres. Mutations run inside a transaction holding a row lock
// on the order, so racing reconciliation events for the same order are
// applied one at a time.
type PostgresOrderStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresOrderStore constructs an order store backed by Postgres.
func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db, now: time.Now}
}

// NewPostgresOrderStoreWithSchema initializes the schema then returns the store.
func NewPostgresOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresOrderStore, error) {
	store := NewPostgresOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the order tables if they do not exist.
func (s *PostgresOrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL,
			status TEXT NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			total_items INTEGER NOT NULL,
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			paid_at TIMESTAMPTZ,
			payment_reference TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			name TEXT,
			quantity INTEGER NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS order_receipts (
			order_id TEXT PRIMARY KEY,
			receipt_url TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS order_status_events (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			metadata TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Create persists the order header and all items in one transaction.
func (s *PostgresOrderStore) Create(ctx context.Context, order orders.Order) (orders.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, requester_id, status, total_amount, total_items, paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`,
		order.ID, order.RequesterID, order.Status, order.TotalAmount, order.TotalItems,
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return orders.Order{}, err
	}

	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, order.ID, i, item.ProductID, item.Name, item.Quantity, item.UnitPrice,
		); err != nil {
			return orders.Order{}, err
		}
	}

	if err := insertStatusEvent(ctx, tx, order.ID, order.Status, nil, order.CreatedAt); err != nil {
		return orders.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return orders.Order{}, err
	}
	return order, nil
}

// MarkPaid persists the paid transition and the receipt in one transaction.
// A second delivery finds the order already PAID under the row lock and
// returns the current state without touching the receipt.
func (s *PostgresOrderStore) MarkPaid(ctx context.Context, orderID, paymentReference, receiptURL string) (orders.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return orders.Order{}, err
	}

	if status == orders.StatusPaid {
		if err := tx.Commit(); err != nil {
			return orders.Order{}, err
		}
		return s.FindByID(ctx, orderID)
	}
	if status != orders.StatusPending {
		return orders.Order{}, &orders.TransitionError{OrderID: orderID, From: status, To: orders.StatusPaid}
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, paid = TRUE, paid_at = $3, payment_reference = $4, updated_at = $3
		WHERE id = $1`,
		orderID, orders.StatusPaid, now, paymentReference,
	); err != nil {
		return orders.Order{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_receipts (order_id, receipt_url, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, receiptURL, now,
	); err != nil {
		return orders.Order{}, err
	}

	meta := orders.StatusMetadata{"payment_reference": paymentReference}
	if receiptURL != "" {
		meta["receipt_url"] = receiptURL
	}
	if err := insertStatusEvent(ctx, tx, orderID, orders.StatusPaid, meta, now); err != nil {
		return orders.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return orders.Order{}, err
	}
	return s.FindByID(ctx, orderID)
}

// ChangeStatus persists a transition, re-applying the aggregate guard under
// the row lock. The store holds no transition rules of its own; it delegates
// to the aggregate so concurrent events converge on a single outcome.
func (s *PostgresOrderStore) ChangeStatus(ctx context.Context, orderID string, next orders.Status, meta orders.StatusMetadata) (orders.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT status, paid FROM orders WHERE id = $1 FOR UPDATE`, orderID)

	locked := orders.Order{ID: orderID}
	if err := row.Scan(&locked.Status, &locked.Paid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrNotFound
		}
		return orders.Order{}, err
	}

	if locked.Status == next {
		if err := tx.Commit(); err != nil {
			return orders.Order{}, err
		}
		return s.FindByID(ctx, orderID)
	}

	now := s.now()
	if err := locked.ChangeStatus(next, now); err != nil {
		return orders.Order{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		orderID, next, now,
	); err != nil {
		return orders.Order{}, err
	}

	if err := insertStatusEvent(ctx, tx, orderID, next, meta, now); err != nil {
		return orders.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return orders.Order{}, err
	}
	return s.FindByID(ctx, orderID)
}

// FindByID loads an order with its items.
func (s *PostgresOrderStore) FindByID(ctx context.Context, orderID string) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, requester_id, status, total_amount, total_items, paid, paid_at, payment_reference, created_at, updated_at
		FROM orders
		WHERE id = $1`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrNotFound
		}
		return orders.Order{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item orders.OrderItem
		var name sql.NullString
		if err := rows.Scan(&item.ID, &item.ProductID, &name, &item.Quantity, &item.UnitPrice); err != nil {
			return orders.Order{}, err
		}
		item.Name = name.String
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return orders.Order{}, err
	}

	return order, nil
}

// FindAll lists order headers with offset pagination, newest first. Items
// are not loaded for listings.
func (s *PostgresOrderStore) FindAll(ctx context.Context, filter orders.ListFilter, page, limit int) (orders.OrderPage, error) {
	countQuery := `SELECT COUNT(*) FROM orders`
	listQuery := `
		SELECT id, requester_id, status, total_amount, total_items, paid, paid_at, payment_reference, created_at, updated_at
		FROM orders`
	var countArgs []any
	var listArgs []any

	if filter.Status != nil {
		countQuery += ` WHERE status = $1`
		listQuery += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		countArgs = append(countArgs, *filter.Status)
		listArgs = append(listArgs, *filter.Status, limit, (page-1)*limit)
	} else {
		listQuery += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		listArgs = append(listArgs, limit, (page-1)*limit)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return orders.OrderPage{}, err
	}

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return orders.OrderPage{}, err
	}
	defer rows.Close()

	result := orders.OrderPage{
		Meta: orders.PageMeta{
			Total:    total,
			Page:     page,
			LastPage: (total + limit - 1) / limit,
		},
	}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return orders.OrderPage{}, err
		}
		result.Data = append(result.Data, order)
	}
	if err := rows.Err(); err != nil {
		return orders.OrderPage{}, err
	}

	return result, nil
}

// FindReceipt loads the receipt created at the paid transition.
func (s *PostgresOrderStore) FindReceipt(ctx context.Context, orderID string) (orders.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, receipt_url, created_at FROM order_receipts WHERE order_id = $1`, orderID)

	var receipt orders.Receipt
	if err := row.Scan(&receipt.OrderID, &receipt.ReceiptURL, &receipt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Receipt{}, orders.ErrNotFound
		}
		return orders.Receipt{}, err
	}
	return receipt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var order orders.Order
	var paidAt sql.NullTime
	var reference sql.NullString

	if err := row.Scan(
		&order.ID, &order.RequesterID, &order.Status, &order.TotalAmount, &order.TotalItems,
		&order.Paid, &paidAt, &reference, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return orders.Order{}, err
	}

	if paidAt.Valid {
		t := paidAt.Time
		order.PaidAt = &t
	}
	order.PaymentReference = reference.String
	return order, nil
}

func lockOrderStatus(ctx context.Context, tx *sql.Tx, orderID string) (orders.Status, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID)

	var status orders.Status
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", orders.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func insertStatusEvent(ctx context.Context, tx *sql.Tx, orderID string, status orders.Status, meta orders.StatusMetadata, at time.Time) error {
	var metadata sql.NullString
	if len(meta) > 0 {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		metadata = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_events (order_id, status, metadata, created_at)
		VALUES ($1, $2, $3, $4)`,
		orderID, status, metadata, at,
	)
	return err
}
