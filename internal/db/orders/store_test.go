package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrderMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func newFixedStore(db *sql.DB) *PostgresOrderStore {
	store := NewPostgresOrderStore(db)
	store.now = func() time.Time { return fixedNow }
	return store
}

func orderHeaderRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "requester_id", "status", "total_amount", "total_items",
		"paid", "paid_at", "payment_reference", "created_at", "updated_at",
	})
}

func expectFindByID(mock sqlmock.Sqlmock, orderID string, status orders.Status) {
	mock.ExpectQuery("SELECT id, requester_id, status").
		WithArgs(orderID).
		WillReturnRows(orderHeaderRows().
			AddRow(orderID, "user-1", string(status), 21.98, 2, status == orders.StatusPaid, nil, nil, fixedNow, fixedNow))
	mock.ExpectQuery("SELECT id, product_id, name").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "name", "quantity", "unit_price"}).
			AddRow("item-1", "p1", "Keyboard", 2, 10.99))
}

func TestOrderStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_items").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_receipts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_status_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store, err := NewPostgresOrderStoreWithSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("WithSchema: %v", err)
	}
	if store == nil {
		t.Fatalf("expected store")
	}
}

func TestOrderStore_Create(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	order := orders.NewOrder("order-1", "user-1", []orders.OrderItem{
		{ID: "item-1", ProductID: "p1", Name: "Keyboard", Quantity: 2, UnitPrice: 10.99},
	}, fixedNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("order-1", "user-1", string(orders.StatusPending), 21.98, 2, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("item-1", "order-1", 0, "p1", "Keyboard", 2, 10.99).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	store := newFixedStore(db)
	created, err := store.Create(context.Background(), order)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "order-1" {
		t.Fatalf("unexpected order: %+v", created)
	}
}

func TestOrderStore_Create_InsertFails(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	order := orders.NewOrder("order-1", "user-1", nil, fixedNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()
	mock.ExpectClose()

	store := newFixedStore(db)
	if _, err := store.Create(context.Background(), order); err == nil {
		t.Fatalf("expected insert error")
	}
}

func TestOrderStore_MarkPaid(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(orders.StatusPending)))
	mock.ExpectExec("UPDATE orders").
		WithArgs("order-1", string(orders.StatusPaid), fixedNow, "ch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_receipts").
		WithArgs("order-1", "https://receipts.local/r1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectFindByID(mock, "order-1", orders.StatusPaid)
	mock.ExpectClose()

	store := newFixedStore(db)
	updated, err := store.MarkPaid(context.Background(), "order-1", "ch-1", "https://receipts.local/r1")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if updated.Status != orders.StatusPaid {
		t.Fatalf("expected PAID, got %s", updated.Status)
	}
}

func TestOrderStore_MarkPaid_AlreadyPaid(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(orders.StatusPaid)))
	mock.ExpectCommit()
	expectFindByID(mock, "order-1", orders.StatusPaid)
	mock.ExpectClose()

	store := newFixedStore(db)
	updated, err := store.MarkPaid(context.Background(), "order-1", "ch-1", "")
	if err != nil {
		t.Fatalf("redelivery must succeed: %v", err)
	}
	if updated.Status != orders.StatusPaid {
		t.Fatalf("expected PAID, got %s", updated.Status)
	}
}

func TestOrderStore_MarkPaid_WrongState(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(orders.StatusCancelled)))
	mock.ExpectRollback()
	mock.ExpectClose()

	store := newFixedStore(db)
	_, err := store.MarkPaid(context.Background(), "order-1", "ch-1", "")
	if !errors.Is(err, orders.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOrderStore_MarkPaid_NotFound(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectClose()

	store := newFixedStore(db)
	_, err := store.MarkPaid(context.Background(), "order-1", "ch-1", "")
	if !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderStore_ChangeStatus(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, paid FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "paid"}).AddRow(string(orders.StatusPending), false))
	mock.ExpectExec("UPDATE orders").
		WithArgs("order-1", string(orders.StatusCancelled), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectFindByID(mock, "order-1", orders.StatusCancelled)
	mock.ExpectClose()

	store := newFixedStore(db)
	updated, err := store.ChangeStatus(context.Background(), "order-1", orders.StatusCancelled, orders.StatusMetadata{"reason": "test"})
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if updated.Status != orders.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", updated.Status)
	}
}

func TestOrderStore_ChangeStatus_SameStatusNoop(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, paid FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "paid"}).AddRow(string(orders.StatusCancelled), false))
	mock.ExpectCommit()
	expectFindByID(mock, "order-1", orders.StatusCancelled)
	mock.ExpectClose()

	store := newFixedStore(db)
	updated, err := store.ChangeStatus(context.Background(), "order-1", orders.StatusCancelled, nil)
	if err != nil {
		t.Fatalf("redelivery must be a no-op success: %v", err)
	}
	if updated.Status != orders.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", updated.Status)
	}
}

func TestOrderStore_ChangeStatus_GuardRejectsUnderLock(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	// The row lock observed CANCELLED, so a racing paid event is rejected.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, paid FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "paid"}).AddRow(string(orders.StatusCancelled), false))
	mock.ExpectRollback()
	mock.ExpectClose()

	store := newFixedStore(db)
	_, err := store.ChangeStatus(context.Background(), "order-1", orders.StatusDelivered, nil)
	if !errors.Is(err, orders.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOrderStore_ChangeStatus_NotFound(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, paid FROM orders").
		WithArgs("order-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectClose()

	store := newFixedStore(db)
	_, err := store.ChangeStatus(context.Background(), "order-1", orders.StatusCancelled, nil)
	if !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderStore_FindByID(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	expectFindByID(mock, "order-1", orders.StatusPending)
	mock.ExpectClose()

	store := newFixedStore(db)
	order, err := store.FindByID(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if order.ID != "order-1" || len(order.Items) != 1 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Items[0].Name != "Keyboard" {
		t.Fatalf("unexpected item: %+v", order.Items[0])
	}
}

func TestOrderStore_FindByID_NotFound(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT id, requester_id, status").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	store := newFixedStore(db)
	if _, err := store.FindByID(context.Background(), "ghost"); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderStore_FindAll(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT id, requester_id, status").
		WithArgs(2, 2).
		WillReturnRows(orderHeaderRows().
			AddRow("order-3", "user-1", string(orders.StatusPending), 10.0, 1, false, nil, nil, fixedNow, fixedNow).
			AddRow("order-2", "user-1", string(orders.StatusPending), 10.0, 1, false, nil, nil, fixedNow, fixedNow))
	mock.ExpectClose()

	store := newFixedStore(db)
	page, err := store.FindAll(context.Background(), orders.ListFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if page.Meta.Total != 5 || page.Meta.Page != 2 || page.Meta.LastPage != 3 {
		t.Fatalf("unexpected meta: %+v", page.Meta)
	}
	if len(page.Data) != 2 || len(page.Data[0].Items) != 0 {
		t.Fatalf("listings carry headers only: %+v", page.Data)
	}
}

func TestOrderStore_FindAll_StatusFilter(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE status`).
		WithArgs(string(orders.StatusPaid)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, requester_id, status").
		WithArgs(string(orders.StatusPaid), 10, 0).
		WillReturnRows(orderHeaderRows().
			AddRow("order-1", "user-1", string(orders.StatusPaid), 10.0, 1, true, fixedNow, "ch-1", fixedNow, fixedNow))
	mock.ExpectClose()

	store := newFixedStore(db)
	status := orders.StatusPaid
	page, err := store.FindAll(context.Background(), orders.ListFilter{Status: &status}, 1, 10)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if page.Meta.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Data[0].PaymentReference != "ch-1" {
		t.Fatalf("unexpected order: %+v", page.Data[0])
	}
}

func TestOrderStore_FindReceipt(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT order_id, receipt_url, created_at FROM order_receipts").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "receipt_url", "created_at"}).
			AddRow("order-1", "https://receipts.local/r1", fixedNow))
	mock.ExpectClose()

	store := newFixedStore(db)
	receipt, err := store.FindReceipt(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("FindReceipt: %v", err)
	}
	if receipt.ReceiptURL != "https://receipts.local/r1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestOrderStore_FindReceipt_NotFound(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT order_id, receipt_url, created_at FROM order_receipts").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	store := newFixedStore(db)
	if _, err := store.FindReceipt(context.Background(), "ghost"); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
