package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/metrics"
)

type cartRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, lookup domain.CartLookup) (*domain.Cart, error)
	GetOrCreateForUpdate(ctx context.Context, tx *sql.Tx, lookup domain.CartLookup) (*domain.Cart, error)
	Items(ctx context.Context, tx *sql.Tx, cartID int64) ([]domain.CartItem, error)
	UpsertItem(ctx context.Context, tx *sql.Tx, cartID int64, sku string, quantity int, unitPrice decimal.Decimal) (*domain.CartItem, error)
	DeleteItems(ctx context.Context, tx *sql.Tx, cartID int64) error
	Touch(ctx context.Context, tx *sql.Tx, cartID int64) error
}

type orderRepo interface {
	Create(ctx context.Context, tx *sql.Tx, o *domain.Order) error
	CreateItems(ctx context.Context, tx *sql.Tx, orderID int64, items []domain.OrderItem) error
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	GetForUpdateByOrderNo(ctx context.Context, tx *sql.Tx, orderNo string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.OrderStatus, paymentRef *string) error
}

type callbackVerifier interface {
	Verify(orderCode, status, timestamp, signature string) error
}

type Service struct {
	carts    cartRepo
	orders   orderRepo
	verifier callbackVerifier
	db       *sql.DB
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(carts cartRepo, orders orderRepo, verifier callbackVerifier, db *sql.DB, m *metrics.Metrics) *Service {
	return &Service{
		carts:    carts,
		orders:   orders,
		verifier: verifier,
		db:       db,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetOrder(ctx context.Context, orderNo string) (*domain.Order, error) {
	o, err := s.orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, fmt.Errorf("GetOrder: %w", err)
	}
	return o, nil
}
