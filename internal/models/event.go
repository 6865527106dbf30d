package models

import (
	"fmt"
	"time"
)

// Типы событий, которые state machine отдаёт оркестратору.
const (
	EventOrderStatusChanged     = "order:status:changed"
	EventDeliveryAssigned       = "delivery:assigned"
	EventDeliveryStatusChanged  = "delivery:status:changed"
	EventCourierLocationChanged = "courier:location:changed"
)

// Event is what a committed state change produces. The state machine does no
// socket or cache I/O itself: the caller publishes to Room, deletes
// InvalidateKeys and InvalidatePrefixes from the cache (before acknowledging
// the mutation), and forwards order-status events to the broker.
type Event struct {
	Type    string
	Room    string
	Payload any

	// Seq — номер события внутри комнаты, присвоенный в порядке фиксации
	// переходов. 0 означает событие вне последовательности: оно доставляется
	// как есть, без упорядочивания.
	Seq uint64

	InvalidateKeys     []string
	InvalidatePrefixes []string
}

// Room keys, one room per entity.
func OrderRoom(orderID string) string       { return fmt.Sprintf("order:%s", orderID) }
func DeliveryRoom(deliveryID string) string { return fmt.Sprintf("delivery:%s", deliveryID) }

// CourierRoom addresses a single courier, not a broadcast audience.
func CourierRoom(courierID string) string { return fmt.Sprintf("courier:%s", courierID) }

type OrderStatusChangedPayload struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type DeliveryAssignedPayload struct {
	DeliveryID string    `json:"delivery_id"`
	OrderID    string    `json:"order_id"`
	CourierID  string    `json:"courier_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

type DeliveryStatusChangedPayload struct {
	DeliveryID string    `json:"delivery_id"`
	OrderID    string    `json:"order_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	ChangedAt  time.Time `json:"changed_at"`
}
