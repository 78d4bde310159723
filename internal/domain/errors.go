package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrMissingIdempotencyKey = errors.New("idempotency key required")
	ErrOrderAlreadyPaid      = errors.New("order already paid")
	ErrInvalidTransition     = errors.New("invalid payment status transition")

	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderTimeout     = errors.New("payment provider timed out, outcome unknown")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrStaleCallback       = errors.New("callback timestamp outside allowed window")
	ErrWebhookIgnored      = errors.New("webhook event ignored")

	ErrCartNotFound      = errors.New("cart not found")
	ErrCartEmpty         = errors.New("cart is empty")
	ErrDuplicateCheckout = errors.New("duplicate checkout")
)
