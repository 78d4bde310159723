package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
)

type CartLine struct {
	SKU       string
	Quantity  int
	UnitPrice string
}

// SeedCart creates a cart addressed by cartKey and fills it with lines.
func SeedCart(t *testing.T, db *sql.DB, cartKey string, lines ...CartLine) int64 {
	t.Helper()

	var cartID int64
	err := db.QueryRow(
		`INSERT INTO carts (cart_key) VALUES ($1) RETURNING id`, cartKey,
	).Scan(&cartID)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	for _, l := range lines {
		_, err := db.Exec(
			`INSERT INTO cart_items (cart_id, sku, quantity, unit_price) VALUES ($1, $2, $3, $4)`,
			cartID, l.SKU, l.Quantity, decimal.RequireFromString(l.UnitPrice),
		)
		if err != nil {
			t.Fatalf("seed cart item %s: %v", l.SKU, err)
		}
	}
	return cartID
}

// SeedOrder inserts a bare order header in the given status.
func SeedOrder(t *testing.T, db *sql.DB, orderNo string, status domain.OrderStatus) int64 {
	t.Helper()

	cartID := SeedCart(t, db, "cart-"+orderNo)
	var id int64
	err := db.QueryRow(
		`INSERT INTO orders (order_no, cart_id, status, payment_method, subtotal, shipping_fee, total)
		VALUES ($1, $2, $3, 'FAKE', 100, 0, 100) RETURNING id`,
		orderNo, cartID, status,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

// SeedPayment inserts a payment directly, bypassing the provider.
func SeedPayment(t *testing.T, db *sql.DB, orderCode string, status domain.PaymentStatus, providerRef string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()
	var ref *string
	if providerRef != "" {
		ref = &providerRef
	}
	_, err := db.Exec(
		`INSERT INTO payments (id, order_code, method, amount, currency, status, idempotency_key,
			provider_reference, created_at, updated_at)
		VALUES ($1, $2, 'FAKE', 100, 'VND', $3, $4, $5, $6, $6)`,
		id, orderCode, status, uuid.NewString(), ref, now,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return id
}

func GetOrderStatus(t *testing.T, db *sql.DB, orderNo string) domain.OrderStatus {
	t.Helper()
	var status domain.OrderStatus
	if err := db.QueryRow(`SELECT status FROM orders WHERE order_no = $1`, orderNo).Scan(&status); err != nil {
		t.Fatalf("get order status: %v", err)
	}
	return status
}

func CountOutbox(t *testing.T, db *sql.DB, paymentID uuid.UUID, eventType domain.OutboxEventType) int {
	t.Helper()
	var n int
	err := db.QueryRow(
		`SELECT count(*) FROM outbox_messages WHERE aggregate_id = $1 AND event_type = $2`,
		paymentID, eventType,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return n
}

func CountCartItems(t *testing.T, db *sql.DB, cartID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM cart_items WHERE cart_id = $1`, cartID).Scan(&n); err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	return n
}
