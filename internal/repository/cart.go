package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
)

const cartColumns = `id, cart_key, customer_id, created_at, updated_at`

const cartItemColumns = `id, cart_id, sku, quantity, unit_price, created_at`

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetForUpdate locks the cart selected by lookup. A cart key takes precedence
// over the customer id.
func (r *CartRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, lookup domain.CartLookup) (*domain.Cart, error) {
	var row *sql.Row
	if lookup.ByKey() {
		row = tx.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM carts WHERE cart_key = $1 FOR UPDATE`, lookup.CartKey)
	} else {
		row = tx.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND cart_key IS NULL FOR UPDATE`, lookup.CustomerID)
	}

	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrCartNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return c, nil
}

// GetOrCreateForUpdate is GetForUpdate that first creates the cart if needed.
// ON CONFLICT DO NOTHING lets two first-time writers race safely.
func (r *CartRepository) GetOrCreateForUpdate(ctx context.Context, tx *sql.Tx, lookup domain.CartLookup) (*domain.Cart, error) {
	var err error
	if lookup.ByKey() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO carts (cart_key, customer_id) VALUES ($1, $2)
			ON CONFLICT (cart_key) DO NOTHING`,
			lookup.CartKey, nullString(lookup.CustomerID))
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO carts (customer_id) VALUES ($1)
			ON CONFLICT (customer_id) WHERE cart_key IS NULL DO NOTHING`,
			lookup.CustomerID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateForUpdate: %w", err)
	}

	c, err := r.GetForUpdate(ctx, tx, lookup)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateForUpdate: %w", err)
	}
	return c, nil
}

func (r *CartRepository) Items(ctx context.Context, tx *sql.Tx, cartID int64) ([]domain.CartItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("Items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.SKU, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("Items: scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Items: rows: %w", err)
	}
	return items, nil
}

// UpsertItem adds quantity to an existing line for sku, or creates the line.
// The latest unit price wins.
func (r *CartRepository) UpsertItem(ctx context.Context, tx *sql.Tx, cartID int64, sku string, quantity int, unitPrice decimal.Decimal) (*domain.CartItem, error) {
	row := tx.QueryRowContext(ctx,
		`INSERT INTO cart_items (cart_id, sku, quantity, unit_price) VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, sku) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price
		RETURNING `+cartItemColumns,
		cartID, sku, quantity, unitPrice,
	)
	var it domain.CartItem
	if err := row.Scan(&it.ID, &it.CartID, &it.SKU, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
		return nil, fmt.Errorf("UpsertItem: %w", err)
	}
	return &it, nil
}

func (r *CartRepository) DeleteItems(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("DeleteItems: %w", err)
	}
	return nil
}

func (r *CartRepository) Touch(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	return nil
}

func scanCart(s scanner) (*domain.Cart, error) {
	var c domain.Cart
	if err := s.Scan(&c.ID, &c.CartKey, &c.CustomerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
