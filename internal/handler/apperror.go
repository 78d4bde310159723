package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrCustomerMismatch = &AppError{http.StatusForbidden, "CUSTOMER_MISMATCH", "customerId does not match the authenticated customer"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrOrderAlreadyPaid      = &AppError{http.StatusConflict, "ORDER_ALREADY_PAID", "Order already has a successful payment"}
	ErrInvalidTransition     = &AppError{http.StatusConflict, "INVALID_TRANSITION", "Payment cannot move to the requested status"}

	ErrProviderNotFound    = &AppError{http.StatusBadRequest, "PROVIDER_NOT_FOUND", "Payment method is not supported"}
	ErrProviderUnavailable = &AppError{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Payment provider rejected or failed the request"}
	ErrProviderTimeout     = &AppError{http.StatusGatewayTimeout, "PROVIDER_TIMEOUT", "Payment provider did not answer in time, retry with the same Idempotency-Key"}
	ErrInvalidSignature    = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Signature is missing or invalid"}
	ErrStaleCallback       = &AppError{http.StatusUnauthorized, "STALE_CALLBACK", "Callback timestamp outside the allowed window"}

	ErrCartNotFound      = &AppError{http.StatusNotFound, "CART_NOT_FOUND", "Cart not found"}
	ErrCartEmpty         = &AppError{http.StatusBadRequest, "CART_EMPTY", "Cart is empty"}
	ErrDuplicateCheckout = &AppError{http.StatusConflict, "DUPLICATE_CHECKOUT", "Order already created for this cart"}
)
