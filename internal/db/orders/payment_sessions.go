package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

// PostgresPaymentClient records payment sessions in Postgres, one per order.
// The order id is the correlation key: replaying OpenSession for the same
// order returns the existing session instead of opening a second one.
type PostgresPaymentClient struct {
	db           *sql.DB
	redirectBase string
	newID        func() string
	now          func() time.Time
}

// NewPostgresPaymentClient constructs a PaymentClient backed by Postgres.
// redirectBase is the checkout URL prefix the session id is appended to.
func NewPostgresPaymentClient(db *sql.DB, redirectBase string) *PostgresPaymentClient {
	if redirectBase == "" {
		redirectBase = "https://payments.local/session/"
	}
	return &PostgresPaymentClient{
		db:           db,
		redirectBase: redirectBase,
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// NewPostgresPaymentClientWithSchema initializes the schema then returns the client.
func NewPostgresPaymentClientWithSchema(ctx context.Context, db *sql.DB, redirectBase string) (*PostgresPaymentClient, error) {
	client := NewPostgresPaymentClient(db, redirectBase)
	if err := client.InitSchema(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// InitSchema creates the payment_sessions table if it does not exist.
func (p *PostgresPaymentClient) InitSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payment_sessions (
			order_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			redirect_url TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// OpenSession opens a payment session for the order, or returns the session
// already opened for it.
func (p *PostgresPaymentClient) OpenSession(ctx context.Context, order orders.Order) (orders.PaymentSession, error) {
	if order.ID == "" {
		return orders.PaymentSession{}, fmt.Errorf("order id required")
	}

	sessionID := p.newID()
	redirectURL := p.redirectBase + sessionID

	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (order_id, session_id, redirect_url, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`,
		order.ID, sessionID, redirectURL, order.TotalAmount, p.now(),
	); err != nil {
		return orders.PaymentSession{}, err
	}

	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, redirect_url FROM payment_sessions WHERE order_id = $1`, order.ID)

	var session orders.PaymentSession
	if err := row.Scan(&session.ID, &session.RedirectURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.PaymentSession{}, fmt.Errorf("payment session not found after insert")
		}
		return orders.PaymentSession{}, err
	}
	return session, nil
}
