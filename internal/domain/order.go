package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled
}

func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusPaid:
		return 1
	case OrderStatusFulfilled:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo reports whether a payment callback may move an order from s to
// next. Terminal orders never change, cancellation is only reachable while the
// order is still pending, and every other move must go forward in rank.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if s.IsTerminal() || s == next {
		return false
	}
	if next == OrderStatusCancelled {
		return s == OrderStatusPending
	}
	return next.rank() > s.rank()
}

// OrderStatusFromPayment maps the payment status vocabulary sent in callbacks.
func OrderStatusFromPayment(status string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(PaymentStatusSucceeded):
		return OrderStatusPaid
	case string(PaymentStatusFailed), string(PaymentStatusCanceled):
		return OrderStatusCancelled
	default:
		return OrderStatusPending
	}
}

type Order struct {
	ID            int64
	OrderNo       string
	CustomerID    *string
	CartID        int64
	Status        OrderStatus
	PaymentMethod string
	PaymentRef    *string
	Subtotal      decimal.Decimal
	ShippingFee   decimal.Decimal
	Total         decimal.Decimal
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is a copy of the cart line at checkout time; later price changes
// do not reach it.
type OrderItem struct {
	ID        int64
	OrderID   int64
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderNumber derives the business key from the checkout time and cart id so a
// retried checkout of the same cart within the same second collides on the
// unique index instead of producing a second order.
func OrderNumber(at time.Time, cartID int64) string {
	return fmt.Sprintf("OD%s%06d", at.UTC().Format("20060102150405"), cartID)
}
