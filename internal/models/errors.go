package models

import "errors"

var (
	// ErrOrderNotFound is returned by storefront lookups for unknown orders.
	ErrOrderNotFound = errors.New("order not found")

	// ErrNoInvoice means the order linkage carries no invoice to act on.
	ErrNoInvoice = errors.New("order has no invoice")
)
