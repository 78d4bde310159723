package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/service/payment"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "X-Idempotent-Replayed"
)

type paymentService interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	Simulate(ctx context.Context, req payment.SimulateRequest) (*payment.SettleResult, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	OrderCode string          `json:"orderCode"`
	ReturnURL string          `json:"returnUrl"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Method == "" {
		errs = append(errs, FieldError{Field: "method", Message: "required"})
	}
	if r.OrderCode == "" {
		errs = append(errs, FieldError{Field: "orderCode", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if r.Currency != "" && len(r.Currency) != 3 {
		errs = append(errs, FieldError{Field: "currency", Message: "must be a 3-letter ISO code"})
	}

	return errs
}

type paymentDTO struct {
	ID            uuid.UUID       `json:"id"`
	OrderCode     string          `json:"orderCode"`
	Method        string          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	RedirectURL   *string         `json:"redirectUrl,omitempty"`
	ProviderRef   *string         `json:"providerRef,omitempty"`
	FailureReason *string         `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:            p.ID,
		OrderCode:     p.OrderCode,
		Method:        p.Method,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		RedirectURL:   p.RedirectURL,
		ProviderRef:   p.ProviderReference,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		CompletedAt:   p.CompletedAt,
	}
}

// Create answers 201 for a new payment and 200 with X-Idempotent-Replayed when
// the key matched an earlier attempt.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	idempotencyKey := r.Header.Get(HeaderIdempotencyKey)
	if idempotencyKey == "" {
		RespondAppError(w, ErrMissingIdempotencyKey, nil)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.payments.Create(r.Context(), payment.CreateRequest{
		Method:         req.Method,
		Amount:         req.Amount,
		Currency:       req.Currency,
		OrderCode:      req.OrderCode,
		ReturnURL:      req.ReturnURL,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		log.Warn("payment creation failed", "order_code", req.OrderCode, "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/payments/%s", res.Payment.ID))
	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set(HeaderReplayed, "true")
		status = http.StatusOK
	}
	RespondSuccess(w, status, toPaymentDTO(res.Payment))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.Get(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

type simulateRequest struct {
	Result    string `json:"result"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

type settleDTO struct {
	Payment paymentDTO `json:"payment"`
	Changed bool       `json:"changed"`
}

// Simulate is only routed when simulation is enabled.
func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Result == "" {
		RespondValidationError(w, []FieldError{{Field: "result", Message: "required"}})
		return
	}

	res, err := h.payments.Simulate(r.Context(), payment.SimulateRequest{
		PaymentID: paymentID,
		Result:    req.Result,
		Reason:    req.Reason,
		Reference: req.Reference,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment simulation failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, settleDTO{Payment: toPaymentDTO(res.Payment), Changed: res.Changed})
}
