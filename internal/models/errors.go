package models

import "errors"

// Error taxonomy surfaced by the core. Callers inspect these with errors.Is;
// wrapping with fmt.Errorf("...: %w", ...) adds context without hiding them.
var (
	// ErrNotFound covers an absent user, product, cart line or order where
	// one is required.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCart is returned by checkout when the cart has no lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInsufficientStock is a normal business outcome, not a bug: an
	// order line wants more units than the catalog has available.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrGatewayUnavailable marks a transient payment-gateway failure,
	// safe to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayMisconfigured means gateway credentials are missing or
	// placeholder values. Fatal, not retryable.
	ErrGatewayMisconfigured = errors.New("payment gateway misconfigured")

	// ErrInvalidInput covers caller errors: non-positive quantity or
	// amount, missing currency, unknown status values.
	ErrInvalidInput = errors.New("invalid input")
)
