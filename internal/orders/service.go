package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	kafkax "github.com/mdrakib/shopstock/internal/kafka"
	"github.com/mdrakib/shopstock/internal/redisx"
	"github.com/mdrakib/shopstock/internal/stock"
)

// Service runs checkout and the order status lifecycle. Every stock
// mutation it performs goes through Ledger; Redis and Producer are
// optional operator plumbing (restore-failure counter and events) and
// may be nil.
type Service struct {
	Ledger              stock.Ledger
	Products            ProductReader
	Store               Store
	Redis               *redis.Client
	Producer            *kafkax.Producer // topic: shop.stock.restore_failed
	ServiceName         string
	DeliveryChargeCents int
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant"`
	Qty       int    `json:"qty"`
}

const createAttempts = 3

// Checkout reserves stock for every requested line, in submission
// order, and persists the order with frozen line snapshots only when
// all reservations succeed. On any failure the lines reserved so far
// are released in reverse order; a failed checkout never leaves a
// partial reservation outstanding.
func (s *Service) Checkout(ctx context.Context, userID string, items []ItemInput, ship Shipping, payment, externalID string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if field := ship.Validate(); field != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidShipping, field)
	}

	// A retried checkout with a known external id replays the stored
	// order without touching stock again.
	if externalID != "" {
		existing, err := s.Store.GetByExternalID(ctx, externalID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Products.ActiveByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Snapshot title/image/price per line before reserving anything, so
	// a request that cannot possibly succeed never touches stock.
	lines := make([]Line, 0, len(items))
	for i, it := range items {
		if it.Qty < 1 {
			return nil, &LineError{Line: i, ProductID: it.ProductID, Variant: it.Variant, Err: stock.ErrInvalidQty}
		}
		p, ok := products[it.ProductID]
		if !ok {
			return nil, &LineError{Line: i, ProductID: it.ProductID, Variant: it.Variant, Err: stock.ErrInvalidTarget}
		}
		if p.HasVariants() {
			if it.Variant == "" || !p.HasVariant(it.Variant) {
				return nil, &LineError{Line: i, ProductID: it.ProductID, Variant: it.Variant, Err: stock.ErrInvalidTarget}
			}
		} else if it.Variant != "" {
			return nil, &LineError{Line: i, ProductID: it.ProductID, Variant: it.Variant, Err: stock.ErrInvalidTarget}
		}
		lines = append(lines, Line{
			ProductID:  p.ID,
			Title:      p.Title,
			Image:      p.FirstImage(),
			Variant:    it.Variant,
			Qty:        it.Qty,
			PriceCents: p.PriceCents,
		})
	}

	// Reservations must run to a definite outcome even if the request
	// dies mid-flight; an abandoned call would desync ledger and order.
	rctx := context.WithoutCancel(ctx)
	for i, ln := range lines {
		if err := s.Ledger.TryReserve(rctx, ln.ProductID, ln.Variant, ln.Qty); err != nil {
			s.rollbackReserved(rctx, lines[:i])
			if errors.Is(err, stock.ErrInsufficientStock) || errors.Is(err, stock.ErrInvalidTarget) {
				return nil, &LineError{Line: i, ProductID: ln.ProductID, Variant: ln.Variant, Err: err}
			}
			return nil, err
		}
	}

	subTotal := 0
	for _, ln := range lines {
		subTotal += ln.PriceCents * ln.Qty
	}
	now := time.Now().UTC()
	order := &Order{
		ID:                  uuid.NewString(),
		ExternalID:          externalID,
		UserID:              userID,
		Items:               lines,
		Shipping:            ship,
		PaymentMethod:       NormalizePayment(payment),
		SubTotalCents:       subTotal,
		DeliveryChargeCents: s.DeliveryChargeCents,
		TotalCents:          subTotal + s.DeliveryChargeCents,
		Status:              StatusPlaced,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	for attempt := 0; ; attempt++ {
		if attempt == createAttempts-1 {
			// Last try: widen beyond five digits so uniqueness no longer
			// depends on luck.
			order.OrderNo = "#" + strings.ToUpper(uuid.NewString()[:8])
		} else {
			order.OrderNo = genOrderNo()
		}
		err := s.Store.Create(rctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateOrderNo) && attempt < createAttempts-1 {
			continue
		}
		// Persisting failed after all lines were reserved: give the
		// stock back rather than orphaning the reservations.
		s.rollbackReserved(rctx, lines)
		if errors.Is(err, ErrDuplicateExternalID) {
			// The same checkout landed concurrently between the replay
			// check and the insert; hand back the order that won.
			if existing, gerr := s.Store.GetByExternalID(rctx, externalID); gerr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return order, nil
}

// SetStatus drives the order lifecycle. Entering CANCELLED releases
// every line's stock exactly once; leaving CANCELLED re-reserves every
// line under the same all-or-nothing discipline as checkout. Any other
// transition, including same-status no-ops, has no stock effect.
//
// Transitions race through a compare-and-swap on the stored status, so
// of two concurrent cancellations exactly one claims the edge and runs
// the release; the loser re-reads and lands on the no-op path.
func (s *Service) SetStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, ErrInvalidStatus
	}

	rctx := context.WithoutCancel(ctx)
	for {
		o, err := s.Store.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		prev := o.Status
		if prev == next {
			return o, nil
		}

		reactivating := prev == StatusCancelled && next.Active()
		if reactivating {
			for i, ln := range o.Items {
				if err := s.Ledger.TryReserve(rctx, ln.ProductID, ln.Variant, ln.Qty); err != nil {
					s.rollbackReserved(rctx, o.Items[:i])
					if errors.Is(err, stock.ErrInsufficientStock) || errors.Is(err, stock.ErrInvalidTarget) {
						return nil, &LineError{Line: i, ProductID: ln.ProductID, Variant: ln.Variant,
							Err: fmt.Errorf("%w: %w", ErrReactivationStock, err)}
					}
					return nil, err
				}
			}
		}

		if err := s.Store.UpdateStatus(rctx, orderID, prev, next); err != nil {
			if reactivating {
				// The re-reservation did not stick; undo it.
				s.rollbackReserved(rctx, o.Items)
			}
			if errors.Is(err, ErrStatusConflict) {
				// Lost the claim to another writer; start over from the
				// status that writer left behind.
				continue
			}
			return nil, err
		}

		if next == StatusCancelled {
			// The edge is claimed, so this release runs at most once per
			// cancellation. Best effort: a line whose target vanished
			// from the catalog cannot block the cancellation; the order
			// record remains the audit trail for the unrestored units.
			for _, ln := range o.Items {
				if err := s.Ledger.Release(rctx, ln.ProductID, ln.Variant, ln.Qty); err != nil {
					s.recordRestoreFailure(rctx, o, ln, err)
				}
			}
		}
		o.Status = next
		o.UpdatedAt = time.Now().UTC()
		return o, nil
	}
}

// rollbackReserved releases already-reserved lines in strictly reverse
// order of acquisition.
func (s *Service) rollbackReserved(ctx context.Context, lines []Line) {
	for i := len(lines) - 1; i >= 0; i-- {
		ln := lines[i]
		if err := s.Ledger.Release(ctx, ln.ProductID, ln.Variant, ln.Qty); err != nil {
			log.Warn().Err(err).
				Str("product_id", ln.ProductID).Str("variant", ln.Variant).Int("qty", ln.Qty).
				Msg("rollback release failed")
		}
	}
}

func (s *Service) recordRestoreFailure(ctx context.Context, o *Order, ln Line, cause error) {
	log.Warn().Err(cause).
		Str("order_no", o.OrderNo).
		Str("product_id", ln.ProductID).Str("variant", ln.Variant).Int("qty", ln.Qty).
		Msg("stock restore failed on cancellation")
	if s.Redis != nil {
		_ = s.Redis.Incr(ctx, redisx.KeyStockRestoreFailures).Err()
	}
	if s.Producer != nil {
		ev := Envelope{
			EventID:       uuid.NewString(),
			EventType:     EventStockRestoreFailed,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      s.ServiceName,
			CorrelationID: o.ID,
			Payload: kafkax.MustMarshal(StockRestoreFailedPayload{
				OrderID: o.ID, ProductID: ln.ProductID, Variant: ln.Variant, Qty: ln.Qty,
			}),
		}
		s.Producer.Publish(PartitionKey(o.ID), kafkax.MustMarshal(ev))
	}
}

// genOrderNo keeps the human-facing "#NNNNN" shape; Create retries on
// the rare collision.
func genOrderNo() string {
	return fmt.Sprintf("#%d", 10000+rand.Intn(90000))
}
