package redisx

import "time"

const (
	// Idempotency for checkout: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Counter of release calls that could not restore stock (target gone).
	// Operator signal only; the order record stays the audit trail.
	KeyStockRestoreFailures = "stock:restore_failures"

	// Audit counters kept by the consumer.
	KeyOrdersPlaced      = "audit:orders_placed"
	KeyOrdersCancelled   = "audit:orders_cancelled"
	KeyOrdersReactivated = "audit:orders_reactivated"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
