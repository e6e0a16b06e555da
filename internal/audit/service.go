// Package audit consumes the order event stream and keeps operator
// counters in redis. It is read-only with respect to stock and orders.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/mdrakib/shopstock/internal/kafka"
	"github.com/mdrakib/shopstock/internal/orders"
	"github.com/mdrakib/shopstock/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderStatus counts cancellations and reactivations from the
// shop.order.status topic.
func (s *Service) HandleOrderStatus(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}
	if dup, err := s.alreadySeen(ctx, env.EventID); err != nil || dup {
		return err
	}

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	switch {
	case p.To == orders.StatusCancelled:
		if err := s.Redis.Incr(ctx, redisx.KeyOrdersCancelled).Err(); err != nil {
			return err
		}
	case p.From == orders.StatusCancelled && p.To.Active():
		if err := s.Redis.Incr(ctx, redisx.KeyOrdersReactivated).Err(); err != nil {
			return err
		}
	}
	log.Info().Str("order_no", p.OrderNo).
		Str("from", string(p.From)).Str("to", string(p.To)).
		Msg("order status changed")
	s.markSeen(ctx, env.EventID)
	return nil
}

// HandleOrderPlaced counts placed orders.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}
	if dup, err := s.alreadySeen(ctx, env.EventID); err != nil || dup {
		return err
	}
	if err := s.Redis.Incr(ctx, redisx.KeyOrdersPlaced).Err(); err != nil {
		return err
	}
	s.markSeen(ctx, env.EventID)
	return nil
}

// HandleRestoreFailed surfaces failed stock restores at warn level; the
// counter itself is incremented synchronously by the order service.
func (s *Service) HandleRestoreFailed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventStockRestoreFailed {
		return nil
	}
	if dup, err := s.alreadySeen(ctx, env.EventID); err != nil || dup {
		return err
	}
	p, err := kafkax.UnwrapPayload[orders.StockRestoreFailedPayload](env.Payload)
	if err != nil {
		return err
	}
	log.Warn().Str("order_id", p.OrderID).
		Str("product_id", p.ProductID).Str("variant", p.Variant).Int("qty", p.Qty).
		Msg("stock restore failed")
	s.markSeen(ctx, env.EventID)
	return nil
}

// alreadySeen dedups by event id so redelivered messages do not
// double-count.
func (s *Service) alreadySeen(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, eventID)
	return redisx.Exists(ctx, s.Redis, key)
}

// markSeen records the event id only after the handler's work landed,
// so a failure mid-handler leaves the message retryable. When the mark
// itself fails the message still commits: a possible double count on
// redelivery beats reprocessing known-good work forever.
func (s *Service) markSeen(ctx context.Context, eventID string) {
	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, eventID)
	if err := s.Redis.Set(ctx, key, "1", redisx.TTLDedup).Err(); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("dedup mark failed")
	}
}
