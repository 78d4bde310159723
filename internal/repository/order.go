package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/settlement/internal/domain"
)

// Constraint Postgres reports when an order number is reused.
const OrderNoConstraint = "orders_order_no_key"

const orderColumns = `id, order_no, customer_id, cart_id, status, payment_method,
	payment_ref, subtotal, shipping_fee, total, created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order header and sets o.ID.
func (r *OrderRepository) Create(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (
			order_no, customer_id, cart_id, status, payment_method,
			payment_ref, subtotal, shipping_fee, total, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		o.OrderNo, o.CustomerID, o.CartID, o.Status, o.PaymentMethod,
		o.PaymentRef, o.Subtotal, o.ShippingFee, o.Total, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OrderRepository) CreateItems(ctx context.Context, tx *sql.Tx, orderID int64, items []domain.OrderItem) error {
	for i := range items {
		items[i].OrderID = orderID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, sku, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			orderID, items[i].SKU, items[i].Quantity, items[i].UnitPrice, items[i].LineTotal,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("CreateItems: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_no = $1`, orderNo)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByOrderNo: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByOrderNo: %w", err)
	}

	items, err := r.items(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("GetByOrderNo: %w", err)
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) GetForUpdateByOrderNo(ctx context.Context, tx *sql.Tx, orderNo string) (*domain.Order, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_no = $1 FOR UPDATE`, orderNo)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdateByOrderNo: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdateByOrderNo: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.OrderStatus, paymentRef *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, payment_ref = COALESCE($2, payment_ref), updated_at = now()
		WHERE id = $3`,
		status, paymentRef, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *OrderRepository) items(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, sku, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SKU, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("items: scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("items: rows: %w", err)
	}
	return items, nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	err := s.Scan(
		&o.ID, &o.OrderNo, &o.CustomerID, &o.CartID, &o.Status, &o.PaymentMethod,
		&o.PaymentRef, &o.Subtotal, &o.ShippingFee, &o.Total, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
