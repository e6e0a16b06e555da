package orders

import (
	"context"

	"github.com/mdrakib/shopstock/internal/catalog"
)

// ProductReader is the catalog read path checkout needs: active
// products with their variant sets, for validation and snapshotting.
type ProductReader interface {
	ActiveByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// Store persists orders. Orders are never deleted; after creation only
// the status column changes.
type Store interface {
	// Create fails with ErrDuplicateOrderNo when OrderNo is taken and
	// ErrDuplicateExternalID when ExternalID is.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetByExternalID returns ErrOrderNotFound when no order carries the id.
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	// UpdateStatus writes the transition from -> to only if the stored
	// status still equals from, failing with ErrStatusConflict otherwise.
	// Concurrent writers race for the claim; exactly one wins.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// ListByUser returns a user's orders newest first; st == "" means all.
	ListByUser(ctx context.Context, userID string, st Status) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}
