package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockRestoreFailed = "StockRestoreFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type LineQty struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Qty       int    `json:"qty"`
}

type OrderPlacedPayload struct {
	OrderID    string    `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	UserID     string    `json:"user_id"`
	Items      []LineQty `json:"items"`
	TotalCents int       `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	OrderNo string `json:"order_no"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type StockRestoreFailedPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Qty       int    `json:"qty"`
}
