package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConflict               = errors.New("conflict")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrMissingReason          = errors.New("reason is required")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPurchaseLocked         = errors.New("purchase not allowed")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrMissingReason, "missing_reason"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrPurchaseLocked, "purchase_locked"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrInvalidInput, "invalid_input"},
}

// Kind returns the machine-readable kind of err, or "internal" when err does
// not wrap one of the package sentinels.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
