package order_test

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/repository"
	"github.com/josh-kwaku/settlement/internal/service/order"
	"github.com/josh-kwaku/settlement/internal/testutil"
)

const secret = "shared-secret"

func setupOrderService(t *testing.T, db *sql.DB) *order.Service {
	t.Helper()
	return order.NewService(
		repository.NewCartRepository(db),
		repository.NewOrderRepository(db),
		callback.NewVerifier(secret, 5*time.Minute),
		db,
		nil,
	)
}

func signedCallback(orderCode, status string) order.CallbackRequest {
	ts := time.Now().Unix()
	return order.CallbackRequest{
		Body:      callback.Body{OrderCode: orderCode, Status: status, ProviderRef: "fake_1"},
		Timestamp: strconv.FormatInt(ts, 10),
		Signature: callback.Sign(secret, callback.Payload(orderCode, status, ts)),
	}
}

func TestCheckout_SnapshotsCartIntoOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	cartID := testutil.SeedCart(t, db, "cart-a",
		testutil.CartLine{SKU: "TEE", Quantity: 2, UnitPrice: "150000"},
		testutil.CartLine{SKU: "CAP", Quantity: 1, UnitPrice: "90000"},
	)

	o, err := svc.Checkout(ctx, order.CheckoutRequest{
		CartKey:       "cart-a",
		ShippingFee:   decimal.NewFromInt(30000),
		PaymentMethod: "fake",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.True(t, decimal.NewFromInt(390000).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromInt(420000).Equal(o.Total))

	stored, err := svc.GetOrder(ctx, o.OrderNo)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "TEE", stored.Items[0].SKU)
	assert.True(t, decimal.NewFromInt(300000).Equal(stored.Items[0].LineTotal))

	assert.Zero(t, testutil.CountCartItems(t, db, cartID))

	// Later price changes in the cart do not reach the order.
	_, err = svc.AddItem(ctx, order.AddItemRequest{CartKey: "cart-a", SKU: "TEE", Quantity: 1, UnitPrice: decimal.NewFromInt(1)})
	require.NoError(t, err)
	stored, err = svc.GetOrder(ctx, o.OrderNo)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150000).Equal(stored.Items[0].UnitPrice))
}

func TestCheckout_ConcurrentSameCart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	testutil.SeedCart(t, db, "cart-race", testutil.CartLine{SKU: "TEE", Quantity: 1, UnitPrice: "100"})

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, order.CheckoutRequest{CartKey: "cart-race", PaymentMethod: "fake"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, empty int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCartEmpty), errors.Is(err, domain.ErrDuplicateCheckout):
			empty++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, empty)

	var orders int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM orders`).Scan(&orders))
	assert.Equal(t, 1, orders)
}

func TestAddItem_MergesQuantityAndCreatesCart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, order.AddItemRequest{CustomerID: "cus_1", SKU: "TEE", Quantity: 1, UnitPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	item, err := svc.AddItem(ctx, order.AddItemRequest{CustomerID: "cus_1", SKU: "TEE", Quantity: 2, UnitPrice: decimal.NewFromInt(120)})
	require.NoError(t, err)

	assert.Equal(t, 3, item.Quantity)
	assert.True(t, decimal.NewFromInt(120).Equal(item.UnitPrice))
	assert.Equal(t, 1, testutil.CountCartItems(t, db, item.CartID))

	o, err := svc.Checkout(ctx, order.CheckoutRequest{CustomerID: "cus_1", PaymentMethod: "fake"})
	require.NoError(t, err)
	require.NotNil(t, o.CustomerID)
	assert.Equal(t, "cus_1", *o.CustomerID)
}

func TestHandleCallback_SignedAndTampered(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	testutil.SeedOrder(t, db, "OD1", domain.OrderStatusPending)

	tampered := signedCallback("OD1", "failed")
	tampered.Body.Status = "succeeded"
	_, err := svc.HandleCallback(ctx, tampered)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, db, "OD1"))

	res, err := svc.HandleCallback(ctx, signedCallback("OD1", "succeeded"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, db, "OD1"))

	// A late failure callback cannot regress a paid order.
	res, err = svc.HandleCallback(ctx, signedCallback("OD1", "failed"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, db, "OD1"))

	stored, err := svc.GetOrder(ctx, "OD1")
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, "fake_1", *stored.PaymentRef)
}

func TestHandleCallback_FulfilledIsFinal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)

	testutil.SeedOrder(t, db, "OD2", domain.OrderStatusFulfilled)

	res, err := svc.HandleCallback(context.Background(), signedCallback("OD2", "canceled"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.OrderStatusFulfilled, testutil.GetOrderStatus(t, db, "OD2"))
}
