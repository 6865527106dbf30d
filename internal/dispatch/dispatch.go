package dispatch

import (
	"context"
	"log/slog"

	"github.com/BearBump/OrderHub/internal/broker/messages"
	"github.com/BearBump/OrderHub/internal/cache"
	"github.com/BearBump/OrderHub/internal/models"
)

// RoomPublisher — fan-out в комнаты подписчиков; реализуется realtime.Hub.
type RoomPublisher interface {
	PublishEvent(ev models.Event)
}

// OrderStatusProducer — исходящие сообщения брокера о переходах заказов.
type OrderStatusProducer interface {
	PublishOrderStatusChanged(ctx context.Context, topic string, msg messages.OrderStatusChanged) error
}

// Dispatcher доводит события зафиксированных переходов до потребителей.
// Порядок жёсткий: сперва инвалидация кэша (синхронно, до ответа клиенту —
// иначе читатель успеет увидеть устаревшую запись), затем комнаты, затем
// брокер. Рассылка и брокер — best-effort. Конкурентные Dispatch могут
// дойти до комнаты не в порядке фиксации: порядок внутри комнаты
// восстанавливает hub по номерам событий.
type Dispatcher struct {
	pub      RoomPublisher
	store    *cache.Store
	producer OrderStatusProducer
	topic    string
}

func New(pub RoomPublisher, store *cache.Store, producer OrderStatusProducer, topic string) *Dispatcher {
	return &Dispatcher{pub: pub, store: store, producer: producer, topic: topic}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []models.Event) {
	for _, ev := range events {
		d.store.Invalidate(ctx, ev.InvalidateKeys...)
		for _, prefix := range ev.InvalidatePrefixes {
			d.store.InvalidatePrefix(ctx, prefix)
		}

		if d.pub != nil && ev.Room != "" {
			d.pub.PublishEvent(ev)
		}

		if d.producer != nil && ev.Type == models.EventOrderStatusChanged {
			p, ok := ev.Payload.(models.OrderStatusChangedPayload)
			if !ok {
				continue
			}
			msg := messages.OrderStatusChanged{
				OrderID:   p.OrderID,
				OldStatus: p.OldStatus,
				NewStatus: p.NewStatus,
				Actor:     p.Actor,
				Reason:    p.Reason,
				ChangedAt: p.ChangedAt,
			}
			if err := d.producer.PublishOrderStatusChanged(ctx, d.topic, msg); err != nil {
				slog.Error("publish order status changed", "order_id", p.OrderID, "error", err)
			}
		}
	}
}
