package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeSM struct {
	locationCalls int
	acceptCalls   int
	completeCalls int
	err           error
	events        []models.Event
}

func (f *fakeSM) RecordLocation(_ context.Context, courierID, deliveryID string, _ models.CourierLocationSample) ([]models.Event, error) {
	f.locationCalls++
	return f.events, f.err
}

func (f *fakeSM) AcceptDelivery(_ context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error) {
	f.acceptCalls++
	return &models.Delivery{ID: deliveryID, CourierID: courierID}, f.events, f.err
}

func (f *fakeSM) Pickup(_ context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error) {
	return &models.Delivery{ID: deliveryID, CourierID: courierID}, f.events, f.err
}

func (f *fakeSM) CompleteDelivery(_ context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error) {
	f.completeCalls++
	return &models.Delivery{ID: deliveryID, CourierID: courierID}, f.events, f.err
}

type fakeSink struct{ dispatched []models.Event }

func (f *fakeSink) Dispatch(_ context.Context, events []models.Event) {
	f.dispatched = append(f.dispatched, events...)
}

type fakeLimiter struct {
	allow bool
	calls int
}

func (f *fakeLimiter) Allow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	f.calls++
	return f.allow, 1, nil
}

func envelope(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	require.NoError(t, err)
	return b
}

func lastFrame(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		t.Fatal("no frame queued")
		return Envelope{}
	}
}

func newTestManager(sm StateMachine, sink EventSink, limiter RateLimiter, reader entityReader) *Manager {
	if reader == nil {
		reader = &fakeReader{}
	}
	return NewManager(ManagerConfig{}, NewHub(), nil, NewAuthorizer(reader), sm, sink, limiter)
}

func TestManager_SubscribeAuthorized(t *testing.T) {
	reader := &fakeReader{orders: map[string]*models.Order{"O1": {ID: "O1", CustomerID: "u1"}}}
	m := newTestManager(&fakeSM{}, &fakeSink{}, nil, reader)
	c := testConn("customer", "u1", 8)

	m.handleInbound(c, envelope(t, MsgSubscribe, SubscribePayload{Room: "order:O1"}))
	require.Equal(t, 1, m.hub.RoomSize("order:O1"))
	require.Empty(t, c.send)
}

func TestManager_SubscribeForeignOrderFailsClosed(t *testing.T) {
	reader := &fakeReader{orders: map[string]*models.Order{"O1": {ID: "O1", CustomerID: "u1"}}}
	m := newTestManager(&fakeSM{}, &fakeSink{}, nil, reader)
	c := testConn("customer", "intruder", 8)

	m.handleInbound(c, envelope(t, MsgSubscribe, SubscribePayload{Room: "order:O1"}))
	require.Equal(t, 0, m.hub.RoomSize("order:O1"))

	env := lastFrame(t, c)
	require.Equal(t, MsgError, env.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, "unauthorized", p.Message)
}

func TestManager_MalformedFrameRejected(t *testing.T) {
	m := newTestManager(&fakeSM{}, &fakeSink{}, nil, nil)
	c := testConn("courier", "c1", 8)

	m.handleInbound(c, []byte("{not json"))
	env := lastFrame(t, c)
	require.Equal(t, MsgError, env.Type)

	m.handleInbound(c, envelope(t, "bogus:type", struct{}{}))
	env = lastFrame(t, c)
	require.Equal(t, MsgError, env.Type)
}

func TestManager_LocationUpdateDispatchesEvents(t *testing.T) {
	sm := &fakeSM{events: []models.Event{{Type: models.EventCourierLocationChanged, Room: "delivery:D1"}}}
	sink := &fakeSink{}
	limiter := &fakeLimiter{allow: true}
	m := newTestManager(sm, sink, limiter, nil)
	c := testConn("courier", "c1", 8)

	m.handleInbound(c, envelope(t, MsgCourierLocationUpdate, LocationUpdatePayload{
		DeliveryID: "D1", Latitude: 55.75, Longitude: 37.62, CapturedAt: time.Now(),
	}))

	require.Equal(t, 1, sm.locationCalls)
	require.Equal(t, 1, limiter.calls)
	require.Len(t, sink.dispatched, 1)
}

func TestManager_LocationUpdateRateLimited(t *testing.T) {
	sm := &fakeSM{}
	sink := &fakeSink{}
	m := newTestManager(sm, sink, &fakeLimiter{allow: false}, nil)
	c := testConn("courier", "c1", 8)

	m.handleInbound(c, envelope(t, MsgCourierLocationUpdate, LocationUpdatePayload{
		DeliveryID: "D1", CapturedAt: time.Now(),
	}))

	// лимит: тихо отброшено, ни вызова, ни ошибки клиенту
	require.Equal(t, 0, sm.locationCalls)
	require.Empty(t, sink.dispatched)
	require.Empty(t, c.send)
}

func TestManager_LocationUpdateFromCustomerRejected(t *testing.T) {
	sm := &fakeSM{}
	m := newTestManager(sm, &fakeSink{}, nil, nil)
	c := testConn("customer", "u1", 8)

	m.handleInbound(c, envelope(t, MsgCourierLocationUpdate, LocationUpdatePayload{DeliveryID: "D1"}))
	require.Equal(t, 0, sm.locationCalls)
	env := lastFrame(t, c)
	require.Equal(t, MsgError, env.Type)
}

func TestManager_DeliveryAcceptAndErrorMapping(t *testing.T) {
	sm := &fakeSM{events: []models.Event{{Type: models.EventDeliveryStatusChanged}}}
	sink := &fakeSink{}
	m := newTestManager(sm, sink, nil, nil)
	c := testConn("courier", "c1", 8)

	m.handleInbound(c, envelope(t, MsgDeliveryAccept, DeliveryActionPayload{DeliveryID: "D1"}))
	require.Equal(t, 1, sm.acceptCalls)
	require.Len(t, sink.dispatched, 1)

	// ErrNotFound наружу неотличим от unauthorized
	sm.err = models.ErrNotFound
	m.handleInbound(c, envelope(t, MsgDeliveryAccept, DeliveryActionPayload{DeliveryID: "nope"}))
	env := lastFrame(t, c)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, "unauthorized", p.Message)

	sm.err = models.ErrInvalidTransition
	m.handleInbound(c, envelope(t, MsgDeliveryAccept, DeliveryActionPayload{DeliveryID: "D1"}))
	env = lastFrame(t, c)
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, "invalid transition", p.Message)
}

func TestManager_StatusUpdateRoutesToTransition(t *testing.T) {
	sm := &fakeSM{}
	m := newTestManager(sm, &fakeSink{}, nil, nil)
	c := testConn("courier", "c1", 8)

	m.handleInbound(c, envelope(t, MsgCourierStatusUpdate, StatusUpdatePayload{
		DeliveryID: "D1", Status: models.DeliveryStatusDelivered,
	}))
	require.Equal(t, 1, sm.completeCalls)

	m.handleInbound(c, envelope(t, MsgCourierStatusUpdate, StatusUpdatePayload{
		DeliveryID: "D1", Status: "teleported",
	}))
	env := lastFrame(t, c)
	require.Equal(t, MsgError, env.Type)
}
