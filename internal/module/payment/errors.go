package payment

import "errors"

var (
	// ErrTransactionNotFound is returned when no transaction matches
	// the given payment intent id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidAmount is returned for non-positive payment amounts.
	ErrInvalidAmount = errors.New("invalid payment amount")
)
