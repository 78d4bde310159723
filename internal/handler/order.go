package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/auth"
	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/service/order"
)

type orderService interface {
	HandleCallback(ctx context.Context, req order.CallbackRequest) (*order.ApplyResult, error)
	Checkout(ctx context.Context, req order.CheckoutRequest) (*domain.Order, error)
	AddItem(ctx context.Context, req order.AddItemRequest) (*domain.CartItem, error)
	GetOrder(ctx context.Context, orderNo string) (*domain.Order, error)
}

type OrderHandler struct {
	orders orderService
}

func NewOrderHandler(orders orderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// PaymentCallback answers the payment service with a bare JSON true on
// success. A bad signature is 401 and the order is left untouched.
func (h *OrderHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var body callback.Body
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OrderCode == "" {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	_, err := h.orders.HandleCallback(r.Context(), order.CallbackRequest{
		Body:      body,
		Timestamp: r.Header.Get(callback.HeaderTimestamp),
		Signature: r.Header.Get(callback.HeaderSignature),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, true)
}

type cartSelector struct {
	CartKey    string `json:"cartKey"`
	CustomerID string `json:"customerId"`
}

// resolve binds the selector to the authenticated customer. It reports false
// when the body names a different customer than the token.
func (s cartSelector) resolve(ctx context.Context) (cartSelector, bool) {
	id, ok := auth.CustomerIDFromContext(ctx)
	if !ok {
		return s, true
	}
	if s.CustomerID != "" && s.CustomerID != id {
		return s, false
	}
	s.CustomerID = id
	return s, true
}

func (s cartSelector) validate() []FieldError {
	if s.CartKey == "" && s.CustomerID == "" {
		return []FieldError{{Field: "cartKey", Message: "cartKey or customerId required"}}
	}
	return nil
}

type checkoutRequest struct {
	cartSelector
	ShippingFee   decimal.Decimal `json:"shippingFee"`
	PaymentMethod string          `json:"paymentMethod"`
}

func (r checkoutRequest) Validate() []FieldError {
	errs := r.cartSelector.validate()
	if r.ShippingFee.IsNegative() {
		errs = append(errs, FieldError{Field: "shippingFee", Message: "must not be negative"})
	}
	if r.PaymentMethod == "" {
		errs = append(errs, FieldError{Field: "paymentMethod", Message: "required"})
	}
	return errs
}

type orderItemDTO struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type orderDTO struct {
	OrderNo       string          `json:"orderNo"`
	CustomerID    *string         `json:"customerId,omitempty"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentRef    *string         `json:"paymentRef,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingFee   decimal.Decimal `json:"shippingFee"`
	Total         decimal.Decimal `json:"total"`
	Items         []orderItemDTO  `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toOrderDTO(o *domain.Order) orderDTO {
	dto := orderDTO{
		OrderNo:       o.OrderNo,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		PaymentMethod: o.PaymentMethod,
		PaymentRef:    o.PaymentRef,
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Total:         o.Total,
		Items:         make([]orderItemDTO, 0, len(o.Items)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, orderItemDTO{
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		})
	}
	return dto
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	sel, ok := req.cartSelector.resolve(r.Context())
	if !ok {
		RespondAppError(w, ErrCustomerMismatch, nil)
		return
	}
	req.cartSelector = sel

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		CartKey:       req.CartKey,
		CustomerID:    req.CustomerID,
		ShippingFee:   req.ShippingFee,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("checkout failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/orders/%s", o.OrderNo))
	RespondSuccess(w, http.StatusCreated, toOrderDTO(o))
}

type addItemRequest struct {
	cartSelector
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (r addItemRequest) Validate() []FieldError {
	errs := r.cartSelector.validate()
	if r.SKU == "" {
		errs = append(errs, FieldError{Field: "sku", Message: "required"})
	}
	if r.Quantity <= 0 {
		errs = append(errs, FieldError{Field: "quantity", Message: "must be greater than 0"})
	}
	if r.UnitPrice.IsNegative() {
		errs = append(errs, FieldError{Field: "unitPrice", Message: "must not be negative"})
	}
	return errs
}

type cartItemDTO struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

func (h *OrderHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	sel, ok := req.cartSelector.resolve(r.Context())
	if !ok {
		RespondAppError(w, ErrCustomerMismatch, nil)
		return
	}
	req.cartSelector = sel

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	item, err := h.orders.AddItem(r.Context(), order.AddItemRequest{
		CartKey:    req.CartKey,
		CustomerID: req.CustomerID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("add cart item failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, cartItemDTO{
		SKU:       item.SKU,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		LineTotal: item.LineTotal(),
	})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("orderNo"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toOrderDTO(o))
}
