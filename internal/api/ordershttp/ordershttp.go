package ordershttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/OrderHub/internal/cache"
	"github.com/BearBump/OrderHub/internal/models"
	"github.com/BearBump/OrderHub/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// EventSink публикует события после фиксации перехода (hub, кэш, брокер).
type EventSink interface {
	Dispatch(ctx context.Context, events []models.Event)
}

// OrdersAPI — REST-поверхность для resolver-слоя. Оркестрация здесь:
// вызвать ядро, при недоступности стора ограниченно повторить, раскидать
// события, и только потом ответить.
type OrdersAPI struct {
	svc   *orders.Service
	store *cache.Store
	sink  EventSink

	retries  int
	backoff  time.Duration
	orderTTL time.Duration
}

func New(svc *orders.Service, store *cache.Store, sink EventSink) *OrdersAPI {
	return &OrdersAPI{
		svc:      svc,
		store:    store,
		sink:     sink,
		retries:  2,
		backoff:  100 * time.Millisecond,
		orderTTL: cache.TTLMedium,
	}
}

// WithOrderTTL переопределяет TTL кэша одиночного заказа.
func (a *OrdersAPI) WithOrderTTL(ttl time.Duration) *OrdersAPI {
	if ttl > 0 {
		a.orderTTL = ttl
	}
	return a
}

func (a *OrdersAPI) Register(r chi.Router) {
	r.Post("/orders", a.placeOrder)
	r.Get("/orders/{id}", a.getOrder)
	r.Post("/orders/{id}/confirm", a.confirmOrder)
	r.Post("/orders/{id}/transition", a.transitionOrder)
	r.Post("/orders/{id}/assign", a.assignCourier)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

type placeOrderRequest struct {
	CustomerID       string `json:"customer_id"`
	RestaurantID     string `json:"restaurant_id"`
	SubtotalCents    int64  `json:"subtotal_cents"`
	TaxCents         int64  `json:"tax_cents"`
	DeliveryFeeCents int64  `json:"delivery_fee_cents"`
	TipCents         int64  `json:"tip_cents"`
}

type transitionRequest struct {
	Target    string `json:"target"`
	ActorRole string `json:"actor_role"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason,omitempty"`
}

type assignRequest struct {
	CourierID string `json:"courier_id"`
}

type orderResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	RestaurantID string  `json:"restaurant_id"`
	CustomerID   string  `json:"customer_id"`
	CourierID    *string `json:"courier_id,omitempty"`

	SubtotalCents    int64 `json:"subtotal_cents"`
	TaxCents         int64 `json:"tax_cents"`
	DeliveryFeeCents int64 `json:"delivery_fee_cents"`
	TipCents         int64 `json:"tip_cents"`
	TotalCents       int64 `json:"total_cents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type deliveryResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id"`
	Status    string `json:"status"`
}

func toOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		Status:           o.Status,
		RestaurantID:     o.RestaurantID,
		CustomerID:       o.CustomerID,
		CourierID:        o.CourierID,
		SubtotalCents:    o.SubtotalCents,
		TaxCents:         o.TaxCents,
		DeliveryFeeCents: o.DeliveryFeeCents,
		TipCents:         o.TipCents,
		TotalCents:       o.TotalCents,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func (a *OrdersAPI) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	var o *models.Order
	var events []models.Event
	err := a.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		o, events, err = a.svc.OnPlaceOrder(ctx, models.OrderCreateInput{
			CustomerID:       req.CustomerID,
			RestaurantID:     req.RestaurantID,
			SubtotalCents:    req.SubtotalCents,
			TaxCents:         req.TaxCents,
			DeliveryFeeCents: req.DeliveryFeeCents,
			TipCents:         req.TipCents,
		})
		return err
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	a.sink.Dispatch(r.Context(), events)
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// getOrder читает через кэш: промах или лежащий redis уходят в стор,
// попадание не трогает его вовсе.
func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := a.store.GetOrSet(r.Context(), cache.OrderKey(id), a.orderTTL, func(ctx context.Context) ([]byte, error) {
		o, err := a.svc.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(toOrderResponse(o))
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (a *OrdersAPI) confirmOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var o *models.Order
	var events []models.Event
	err := a.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		o, events, err = a.svc.OnConfirmOrder(ctx, id, orders.Actor{Role: orders.RolePlatform, ID: "api"})
		return err
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	a.sink.Dispatch(r.Context(), events)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (a *OrdersAPI) transitionOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	var o *models.Order
	var events []models.Event
	err := a.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		o, events, err = a.svc.Transition(ctx, id, req.Target, orders.Actor{Role: req.ActorRole, ID: req.ActorID}, req.Reason)
		return err
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	a.sink.Dispatch(r.Context(), events)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (a *OrdersAPI) assignCourier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourierID == "" {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	var d *models.Delivery
	var events []models.Event
	err := a.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		d, events, err = a.svc.OnAssignCourier(ctx, id, req.CourierID)
		return err
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	a.sink.Dispatch(r.Context(), events)
	writeJSON(w, http.StatusCreated, deliveryResponse{
		ID:        d.ID,
		OrderID:   d.OrderID,
		CourierID: d.CourierID,
		Status:    d.Status,
	})
}

// withRetry повторяет вызов только при недоступности стора. Доменные отказы
// терминальны для запроса и не повторяются; повтор переходов безопасен,
// стор делает compare-and-set.
func (a *OrdersAPI) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, models.ErrBackendUnavailable) || attempt >= a.retries {
			return err
		}
		slog.Warn("store unavailable, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(a.backoff << attempt):
		}
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation failed")
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid transition")
	case errors.Is(err, models.ErrCourierBusy):
		writeError(w, http.StatusConflict, "courier busy")
	case errors.Is(err, models.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		if errors.Is(err, context.Canceled) {
			writeError(w, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		slog.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
