package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         int64
	CartKey    *string
	CustomerID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CartItem struct {
	ID        int64
	CartID    int64
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartLookup selects exactly one cart. Key wins when both are set.
type CartLookup struct {
	CartKey    string
	CustomerID string
}

func (l CartLookup) ByKey() bool {
	return l.CartKey != ""
}

func (l CartLookup) IsZero() bool {
	return l.CartKey == "" && l.CustomerID == ""
}
