package orders

import (
	"context"

	"github.com/BearBump/OrderHub/internal/cache"
	"github.com/BearBump/OrderHub/internal/models"
	"github.com/pkg/errors"
)

// Хуки для слоя резолверов: каждый возвращает обновлённую сущность и список
// событий, которые вызывающий публикует/инвалидирует сам.

func (s *Service) OnPlaceOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, []models.Event, error) {
	if in.CustomerID == "" {
		return nil, nil, errors.Wrap(models.ErrValidation, "customerId is required")
	}
	if in.RestaurantID == "" {
		return nil, nil, errors.Wrap(models.ErrValidation, "restaurantId is required")
	}
	if in.SubtotalCents < 0 || in.TaxCents < 0 || in.DeliveryFeeCents < 0 || in.TipCents < 0 {
		return nil, nil, errors.Wrap(models.ErrValidation, "amounts must be non-negative")
	}

	now := s.now()
	o := &models.Order{
		ID:               s.newID(),
		Status:           models.OrderStatusPending,
		CustomerID:       in.CustomerID,
		RestaurantID:     in.RestaurantID,
		SubtotalCents:    in.SubtotalCents,
		TaxCents:         in.TaxCents,
		DeliveryFeeCents: in.DeliveryFeeCents,
		TipCents:         in.TipCents,
		TotalCents:       in.TotalCents(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, nil, err
	}

	ev := models.Event{
		Type: models.EventOrderStatusChanged,
		Room: models.OrderRoom(o.ID),
		Payload: models.OrderStatusChangedPayload{
			OrderID:   o.ID,
			NewStatus: models.OrderStatusPending,
			Actor:     RoleCustomer,
			ChangedAt: now,
		},
		InvalidatePrefixes: []string{cache.OrdersListPrefix(in.CustomerID)},
	}
	return o, []models.Event{ev}, nil
}

func (s *Service) OnConfirmOrder(ctx context.Context, orderID string, actor Actor) (*models.Order, []models.Event, error) {
	return s.Transition(ctx, orderID, models.OrderStatusConfirmed, actor, "")
}

func (s *Service) OnAssignCourier(ctx context.Context, orderID, courierID string) (*models.Delivery, []models.Event, error) {
	return s.AssignCourier(ctx, orderID, courierID)
}

// OnPaymentCaptured — триггер от платёжного шлюза. Сумма должна совпасть
// с total заказа: total после захвата платежа неизменяем.
func (s *Service) OnPaymentCaptured(ctx context.Context, orderID string, amountCents int64) (*models.Order, []models.Event, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.TotalCents != amountCents {
		return nil, nil, errors.Wrapf(models.ErrValidation, "payment amount %d does not match order total %d", amountCents, o.TotalCents)
	}
	return s.Transition(ctx, orderID, models.OrderStatusConfirmed, Actor{Role: RolePlatform, ID: "payment-gateway"}, "payment captured")
}

func (s *Service) OnPaymentFailed(ctx context.Context, orderID, reason string) (*models.Order, []models.Event, error) {
	return s.Transition(ctx, orderID, models.OrderStatusCancelled, Actor{Role: RolePlatform, ID: "payment-gateway"}, reason)
}
