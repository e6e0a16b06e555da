package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNoItems          = errors.New("no items")
	ErrInvalidShipping  = errors.New("shipping info missing")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrDuplicateOrderNo = errors.New("duplicate order number")

	// ErrStatusConflict: the order's status moved between reading it and
	// writing the transition; the caller re-reads and tries again.
	ErrStatusConflict = errors.New("order status changed concurrently")

	// ErrDuplicateExternalID: another checkout with the same external id
	// already persisted an order.
	ErrDuplicateExternalID = errors.New("duplicate external id")

	// ErrReactivationStock: a CANCELLED order could not re-reserve the
	// stock for one of its lines.
	ErrReactivationStock = errors.New("stock unavailable for reactivation")
)

// LineError scopes a failure to one cart line so the caller can render
// which item failed. It unwraps to the underlying sentinel
// (stock.ErrInsufficientStock, stock.ErrInvalidTarget,
// ErrReactivationStock, ...).
type LineError struct {
	Line      int
	ProductID string
	Variant   string
	Err       error
}

func (e *LineError) Error() string {
	if e.Variant != "" {
		return fmt.Sprintf("line %d (product %s, variant %q): %v", e.Line, e.ProductID, e.Variant, e.Err)
	}
	return fmt.Sprintf("line %d (product %s): %v", e.Line, e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
