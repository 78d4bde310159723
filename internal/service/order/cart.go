package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
)

type AddItemRequest struct {
	CartKey    string
	CustomerID string
	SKU        string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// AddItem creates the cart on first use and merges repeated SKUs into one line.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (*domain.CartItem, error) {
	lookup := domain.CartLookup{
		CartKey:    strings.TrimSpace(req.CartKey),
		CustomerID: strings.TrimSpace(req.CustomerID),
	}
	sku := strings.TrimSpace(req.SKU)
	switch {
	case lookup.IsZero():
		return nil, fmt.Errorf("AddItem: cart key or customer id required: %w", domain.ErrInvalidRequest)
	case sku == "" || req.Quantity <= 0:
		return nil, fmt.Errorf("AddItem: sku and positive quantity required: %w", domain.ErrInvalidRequest)
	case req.UnitPrice.IsNegative():
		return nil, fmt.Errorf("AddItem: %w", domain.ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AddItem: begin tx: %w", err)
	}
	defer tx.Rollback()

	cart, err := s.carts.GetOrCreateForUpdate(ctx, tx, lookup)
	if err != nil {
		return nil, fmt.Errorf("AddItem: %w", err)
	}
	item, err := s.carts.UpsertItem(ctx, tx, cart.ID, sku, req.Quantity, req.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("AddItem: %w", err)
	}
	if err := s.carts.Touch(ctx, tx, cart.ID); err != nil {
		return nil, fmt.Errorf("AddItem: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("AddItem: commit: %w", err)
	}
	return item, nil
}
