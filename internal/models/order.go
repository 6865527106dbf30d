package models

import "time"

// Статусы заказа. Переходы только вперёд по графу, cancelled доступен
// из любого нетерминального статуса.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusPickedUp  = "picked_up"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

var orderSuccessors = map[string][]string{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:  {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: nil,
	OrderStatusCancelled: nil,
}

func IsOrderStatus(s string) bool {
	_, ok := orderSuccessors[s]
	return ok
}

func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// IsClosingOrderStatus reports whether the status ends the order lifecycle,
// which widens cache invalidation to the list caches.
func IsClosingOrderStatus(s string) bool {
	return IsTerminalOrderStatus(s)
}

func CanTransitionOrder(from, to string) bool {
	for _, s := range orderSuccessors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Все денежные суммы храним в целых копейках/центах, float не используем.
type Order struct {
	ID           string
	Status       string
	RestaurantID string
	CustomerID   string
	CourierID    *string

	SubtotalCents    int64
	TaxCents         int64
	DeliveryFeeCents int64
	TipCents         int64
	TotalCents       int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderCreateInput struct {
	CustomerID   string
	RestaurantID string

	SubtotalCents    int64
	TaxCents         int64
	DeliveryFeeCents int64
	TipCents         int64
}

// TotalCents is derived, so the stored total never drifts from its parts.
func (in OrderCreateInput) TotalCents() int64 {
	return in.SubtotalCents + in.TaxCents + in.DeliveryFeeCents + in.TipCents
}
