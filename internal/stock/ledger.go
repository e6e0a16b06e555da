// Package stock owns every mutation of per-variant stock counters.
//
// A stock cell is addressed by (productID, variant); variant is empty for
// products that keep a single root counter. The only write paths are
// TryReserve and Release, so the stock >= 0 invariant is enforced by
// construction: TryReserve is a single conditional decrement at the
// storage layer, and Release only ever adds back quantities this package
// previously subtracted.
package stock

import (
	"context"
	"errors"
)

var (
	// ErrInvalidTarget: the product or variant does not exist, or the
	// product is inactive.
	ErrInvalidTarget = errors.New("invalid stock target")

	// ErrInsufficientStock covers both genuine exhaustion and losing a
	// race to a concurrent reservation; callers cannot tell them apart.
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidQty = errors.New("quantity must be >= 1")
)

type Ledger interface {
	// Read returns the current stock of a cell. Read-only; inactive
	// products and unknown targets report ErrInvalidTarget.
	Read(ctx context.Context, productID, variant string) (int, error)

	// TryReserve decrements the cell by qty iff the product is active,
	// the cell exists and holds at least qty units — all in one atomic
	// step. At most one concurrent caller wins the last unit.
	TryReserve(ctx context.Context, productID, variant string, qty int) error

	// Release increments the cell by qty. It is a compensating action:
	// no stock precondition. A missing target reports ErrInvalidTarget
	// so the caller can warn, but must never be treated as fatal.
	Release(ctx context.Context, productID, variant string, qty int) error
}
