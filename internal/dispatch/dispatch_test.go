package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/OrderHub/internal/broker/messages"
	"github.com/BearBump/OrderHub/internal/cache"
	"github.com/BearBump/OrderHub/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	deleted  []string
	prefixes []string
}

func (m *memCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (m *memCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (m *memCache) Delete(_ context.Context, keys ...string) error {
	m.deleted = append(m.deleted, keys...)
	return nil
}
func (m *memCache) DeletePrefix(_ context.Context, prefix string) error {
	m.prefixes = append(m.prefixes, prefix)
	return nil
}

type fakePub struct{ published []models.Event }

func (f *fakePub) PublishEvent(ev models.Event) { f.published = append(f.published, ev) }

type fakeProducer struct {
	msgs []messages.OrderStatusChanged
	err  error
}

func (f *fakeProducer) PublishOrderStatusChanged(_ context.Context, _ string, msg messages.OrderStatusChanged) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func orderEvent() models.Event {
	return models.Event{
		Type: models.EventOrderStatusChanged,
		Room: models.OrderRoom("O1"),
		Payload: models.OrderStatusChangedPayload{
			OrderID: "O1", OldStatus: "pending", NewStatus: "cancelled",
		},
		InvalidateKeys:     []string{cache.OrderKey("O1")},
		InvalidatePrefixes: []string{cache.OrdersListPrefix("u1")},
	}
}

func TestDispatcher_InvalidatesPublishesProduces(t *testing.T) {
	mc := &memCache{}
	pub := &fakePub{}
	prod := &fakeProducer{}
	d := New(pub, cache.NewStore(mc), prod, "order.status.changed")

	d.Dispatch(context.Background(), []models.Event{orderEvent()})

	require.Equal(t, []string{cache.OrderKey("O1")}, mc.deleted)
	require.Equal(t, []string{cache.OrdersListPrefix("u1")}, mc.prefixes)
	require.Len(t, pub.published, 1)
	require.Len(t, prod.msgs, 1)
	require.Equal(t, "O1", prod.msgs[0].OrderID)
	require.Equal(t, "cancelled", prod.msgs[0].NewStatus)
}

func TestDispatcher_NonOrderEventSkipsBroker(t *testing.T) {
	pub := &fakePub{}
	prod := &fakeProducer{}
	d := New(pub, nil, prod, "order.status.changed")

	d.Dispatch(context.Background(), []models.Event{{
		Type:    models.EventCourierLocationChanged,
		Room:    models.DeliveryRoom("D1"),
		Payload: models.CourierLocationSample{CourierID: "c1"},
	}})

	require.Len(t, pub.published, 1)
	require.Empty(t, prod.msgs)
}

func TestDispatcher_BrokerErrorDoesNotStopFanout(t *testing.T) {
	pub := &fakePub{}
	prod := &fakeProducer{err: errors.New("broker down")}
	d := New(pub, nil, prod, "order.status.changed")

	d.Dispatch(context.Background(), []models.Event{orderEvent(), orderEvent()})
	require.Len(t, pub.published, 2)
}

func TestDispatcher_NilCollaboratorsAreSafe(t *testing.T) {
	d := New(nil, nil, nil, "")
	d.Dispatch(context.Background(), []models.Event{orderEvent()})
}
