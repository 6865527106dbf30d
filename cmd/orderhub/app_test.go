package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/BearBump/OrderHub/internal/api/ordershttp"
	"github.com/BearBump/OrderHub/internal/dispatch"
	"github.com/BearBump/OrderHub/internal/models"
	"github.com/BearBump/OrderHub/internal/realtime"
	"github.com/BearBump/OrderHub/internal/services/orders"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	order *models.Order
}

func (r *fakeRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if r.order != nil && r.order.ID == id {
		cp := *r.order
		return &cp, nil
	}
	return nil, models.ErrNotFound
}
func (r *fakeRepo) CreateOrder(ctx context.Context, o *models.Order) error { return nil }
func (r *fakeRepo) SaveOrderStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Order, error) {
	if r.order == nil || r.order.ID != id {
		return nil, models.ErrNotFound
	}
	if r.order.Status != from {
		return nil, models.ErrInvalidTransition
	}
	r.order.Status = to
	cp := *r.order
	return &cp, nil
}
func (r *fakeRepo) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	return nil, models.ErrNotFound
}
func (r *fakeRepo) GetActiveDeliveryForCourier(ctx context.Context, courierID string) (*models.Delivery, error) {
	return nil, nil
}
func (r *fakeRepo) CreateDelivery(ctx context.Context, d *models.Delivery) error { return nil }
func (r *fakeRepo) SaveDeliveryStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Delivery, error) {
	return nil, models.ErrNotFound
}

func newTestApp(repo *fakeRepo) (*orders.Service, *ordershttp.OrdersAPI, *realtime.Manager, *dispatch.Dispatcher) {
	svc := orders.New(repo)
	hub := realtime.NewHub()
	sink := dispatch.New(hub, nil, nil, "")
	manager := realtime.NewManager(realtime.ManagerConfig{}, hub,
		realtime.StaticTokenVerifier{}, realtime.NewAuthorizer(repo), svc, sink, nil)
	api := ordershttp.New(svc, nil, sink)
	return svc, api, manager, sink
}

func TestRunOrderHub_ServesAndStops(t *testing.T) {
	svc, api, manager, sink := newTestApp(&fakeRepo{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runOrderHub(ctx, orderHubOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
		}, svc, api, manager, sink, nil)
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	// ждём, пока сервер поднимется (очень коротко)
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case <-errCh:
	}
}

func TestApplyPaymentEvent(t *testing.T) {
	opts := orderHubOpts{
		paymentCapturedTopic: "payment.captured",
		paymentFailedTopic:   "payment.failed",
	}

	repo := &fakeRepo{order: &models.Order{
		ID: "O1", Status: models.OrderStatusPending,
		CustomerID: "u1", RestaurantID: "r1", TotalCents: 1500,
	}}
	svc, _, _, sink := newTestApp(repo)

	captured, _ := json.Marshal(map[string]any{"order_id": "O1", "amount_cents": 1500})
	require.NoError(t, applyPaymentEvent(context.Background(), svc, sink, opts, "payment.captured", captured))
	require.Equal(t, models.OrderStatusConfirmed, repo.order.Status)

	// повтор: заказ уже confirmed, доменный отказ съедается, сообщение коммитим
	require.NoError(t, applyPaymentEvent(context.Background(), svc, sink, opts, "payment.captured", captured))

	// несходящаяся сумма — тоже не повод для перечитывания
	repo.order.Status = models.OrderStatusPending
	mismatch, _ := json.Marshal(map[string]any{"order_id": "O1", "amount_cents": 1})
	require.NoError(t, applyPaymentEvent(context.Background(), svc, sink, opts, "payment.captured", mismatch))
	require.Equal(t, models.OrderStatusPending, repo.order.Status)

	// кривой JSON останавливает консьюмер без коммита
	require.Error(t, applyPaymentEvent(context.Background(), svc, sink, opts, "payment.captured", []byte("{broken")))

	failed, _ := json.Marshal(map[string]any{"order_id": "O1", "reason": "card declined"})
	require.NoError(t, applyPaymentEvent(context.Background(), svc, sink, opts, "payment.failed", failed))
	require.Equal(t, models.OrderStatusCancelled, repo.order.Status)

	require.NoError(t, applyPaymentEvent(context.Background(), svc, sink, opts, "some.other.topic", []byte("{}")))
}
