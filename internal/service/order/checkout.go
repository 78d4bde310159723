package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/repository"
)

type CheckoutRequest struct {
	CartKey       string
	CustomerID    string
	ShippingFee   decimal.Decimal
	PaymentMethod string
}

func (r *CheckoutRequest) lookup() (domain.CartLookup, error) {
	l := domain.CartLookup{
		CartKey:    strings.TrimSpace(r.CartKey),
		CustomerID: strings.TrimSpace(r.CustomerID),
	}
	if l.IsZero() {
		return l, fmt.Errorf("cart key or customer id required: %w", domain.ErrInvalidRequest)
	}
	return l, nil
}

// Checkout turns the selected cart into a pending order. The cart row lock
// serializes concurrent checkouts of the same cart; the loser finds it empty.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	o, err := s.checkout(ctx, req)
	s.metrics.Checkout(err)
	return o, err
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	lookup, err := req.lookup()
	if err != nil {
		return nil, fmt.Errorf("Checkout: %w", err)
	}
	if req.ShippingFee.IsNegative() {
		return nil, fmt.Errorf("Checkout: negative shipping fee: %w", domain.ErrInvalidAmount)
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, fmt.Errorf("Checkout: payment method required: %w", domain.ErrInvalidRequest)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Checkout: begin tx: %w", err)
	}
	defer tx.Rollback()

	cart, err := s.carts.GetForUpdate(ctx, tx, lookup)
	if err != nil {
		return nil, fmt.Errorf("Checkout: %w", err)
	}

	lines, err := s.carts.Items(ctx, tx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("Checkout: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("Checkout: %w", domain.ErrCartEmpty)
	}

	subtotal := decimal.Zero
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		total := l.LineTotal()
		subtotal = subtotal.Add(total)
		items = append(items, domain.OrderItem{
			SKU:       l.SKU,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: total,
		})
	}

	now := s.now()
	o := &domain.Order{
		OrderNo:       domain.OrderNumber(now, cart.ID),
		CustomerID:    cart.CustomerID,
		CartID:        cart.ID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: method,
		Subtotal:      subtotal,
		ShippingFee:   req.ShippingFee,
		Total:         subtotal.Add(req.ShippingFee),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if o.CustomerID == nil && lookup.CustomerID != "" {
		cid := lookup.CustomerID
		o.CustomerID = &cid
	}

	if err := s.orders.Create(ctx, tx, o); err != nil {
		if repository.IsUniqueViolation(err, repository.OrderNoConstraint) {
			return nil, fmt.Errorf("Checkout: order %s: %w", o.OrderNo, domain.ErrDuplicateCheckout)
		}
		return nil, fmt.Errorf("Checkout: %w", err)
	}
	if err := s.orders.CreateItems(ctx, tx, o.ID, items); err != nil {
		return nil, fmt.Errorf("Checkout: %w", err)
	}
	if err := s.carts.DeleteItems(ctx, tx, cart.ID); err != nil {
		return nil, fmt.Errorf("Checkout: %w", err)
	}
	if err := s.carts.Touch(ctx, tx, cart.ID); err != nil {
		return nil, fmt.Errorf("Checkout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Checkout: commit: %w", err)
	}
	o.Items = items

	logging.FromContext(ctx).Info("order created",
		"order_code", o.OrderNo,
		"cart_id", cart.ID,
		"items", len(items),
		"total", o.Total.String(),
	)
	return o, nil
}
