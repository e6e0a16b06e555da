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

	"github.com/mdrakib/shopstock/internal/catalog"
	kafkax "github.com/mdrakib/shopstock/internal/kafka"
	"github.com/mdrakib/shopstock/internal/orders"
	"github.com/mdrakib/shopstock/internal/redisx"
)

// AdminHandler carries the operator surface: order listing, the status
// state machine, and product CRUD. Auth sits in front of it, outside
// this service.
type AdminHandler struct {
	Svc      *orders.Service
	Store    orders.Store
	Catalog  *catalog.Repo
	Producer *kafkax.Producer // topic: shop.order.status
	Redis    *redis.Client
	Service  string
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Get("/admin/orders", h.listOrders)
	r.Put("/admin/orders/{id}/status", h.updateStatus)
	r.Post("/admin/products", h.createProduct)
	r.Put("/admin/products/{id}", h.updateProduct)
	r.Delete("/admin/products/{id}", h.deleteProduct)
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Store.ListAll(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orders": os})
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	next, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	prev, err := h.Store.Get(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	from := prev.Status

	o, err := h.Svc.SetStatus(ctx, orderID, next)
	if err != nil {
		writeErr(w, err)
		return
	}

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
		b, _ := json.Marshal(map[string]any{"status": o.Status})
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}

	if h.Producer != nil && from != o.Status {
		ev := orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventOrderStatusChanged,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: o.ID,
			Payload: kafkax.MustMarshal(orders.OrderStatusChangedPayload{
				OrderID: o.ID, OrderNo: o.OrderNo, From: from, To: o.Status,
			}),
		}
		h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order": o})
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	if p.Title == "" || p.PriceCents <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing fields"})
		return
	}
	p.IsActive = true

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Catalog.Create(ctx, &p); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "product": p})
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	p.ID = chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Catalog.Update(ctx, &p); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "product": p})
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
