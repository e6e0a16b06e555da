package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/mdrakib/shopstock/internal/kafka"
	"github.com/mdrakib/shopstock/internal/orders"
	"github.com/mdrakib/shopstock/internal/redisx"
	"github.com/mdrakib/shopstock/internal/stock"
)

type OrdersHandler struct {
	Svc      *orders.Service
	Store    orders.Store
	Producer *kafkax.Producer // topic: shop.order.placed
	Redis    *redis.Client
	Service  string
}

type CreateOrderReq struct {
	ExternalID    string             `json:"external_id,omitempty"`
	UserID        string             `json:"user_id"`
	Items         []orders.ItemInput `json:"items"`
	Shipping      orders.Shipping    `json:"shipping"`
	PaymentMethod string             `json:"payment_method"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/my", h.listMyOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the order error taxonomy onto status codes, keeping the
// failing line visible so clients can render an actionable message.
func writeErr(w http.ResponseWriter, err error) {
	body := map[string]any{"ok": false, "error": err.Error()}
	var le *orders.LineError
	if errors.As(err, &le) {
		body["line"] = le.Line
		body["product_id"] = le.ProductID
		if le.Variant != "" {
			body["variant"] = le.Variant
		}
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrReactivationStock),
		errors.Is(err, orders.ErrDuplicateExternalID),
		errors.Is(err, orders.ErrStatusConflict),
		errors.Is(err, stock.ErrInsufficientStock):
		code = http.StatusConflict
	case errors.Is(err, orders.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrNoItems),
		errors.Is(err, orders.ErrInvalidShipping),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, stock.ErrInvalidTarget),
		errors.Is(err, stock.ErrInvalidQty):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, body)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing user_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency: a retried checkout with the same external
	// id returns the already-placed order instead of reserving again.
	var idemKey string
	if req.ExternalID != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Store.Get(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order": o, "idempotent": true})
				return
			}
		}
	}

	o, err := h.Svc.Checkout(ctx, req.UserID, req.Items, req.Shipping, req.PaymentMethod, req.ExternalID)
	if err != nil {
		writeErr(w, err)
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	if h.Redis != nil {
		statusKey := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
		_ = h.Redis.Set(ctx, statusKey, `{"status":"PLACED"}`, redisx.TTLStatusCache).Err()
	}

	if h.Producer != nil {
		items := make([]orders.LineQty, 0, len(o.Items))
		for _, ln := range o.Items {
			items = append(items, orders.LineQty{ProductID: ln.ProductID, Variant: ln.Variant, Qty: ln.Qty})
		}
		ev := orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventOrderPlaced,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: o.ID,
			Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
				OrderID: o.ID, OrderNo: o.OrderNo, UserID: o.UserID,
				Items: items, TotalCents: o.TotalCents,
			}),
		}
		h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "order": o})
}

func (h *OrdersHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing user_id"})
		return
	}
	var st orders.Status
	if q := r.URL.Query().Get("status"); q != "" && q != "ALL" {
		parsed, err := orders.ParseStatus(q)
		if err != nil {
			writeErr(w, err)
			return
		}
		st = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Store.ListByUser(ctx, userID, st)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orders": os})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.Get(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order": o})
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Store.Get(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	b, _ := json.Marshal(map[string]any{"status": o.Status})
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
