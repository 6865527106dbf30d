package models

import "time"

// Статусы доставки зеркалируют подмножество статусов заказа.
const (
	DeliveryStatusAssigned  = "assigned"
	DeliveryStatusAccepted  = "accepted"
	DeliveryStatusPickedUp  = "picked_up"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusCancelled = "cancelled"
)

var deliverySuccessors = map[string][]string{
	DeliveryStatusAssigned:  {DeliveryStatusAccepted, DeliveryStatusCancelled},
	DeliveryStatusAccepted:  {DeliveryStatusPickedUp, DeliveryStatusCancelled},
	DeliveryStatusPickedUp:  {DeliveryStatusDelivered, DeliveryStatusCancelled},
	DeliveryStatusDelivered: nil,
	DeliveryStatusCancelled: nil,
}

func IsTerminalDeliveryStatus(s string) bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

func CanTransitionDelivery(from, to string) bool {
	for _, s := range deliverySuccessors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Delivery is 1:1 with an order once a courier is assigned. At most one
// non-terminal delivery may exist per courier at any instant.
type Delivery struct {
	ID        string
	OrderID   string
	CourierID string
	Status    string

	PickupLat  float64
	PickupLon  float64
	DropoffLat float64
	DropoffLon float64

	AssignedAt time.Time
	UpdatedAt  time.Time
}

// CourierLocationSample is ephemeral: it lives only in the channel manager's
// per-delivery state and is never written to the primary store.
type CourierLocationSample struct {
	CourierID  string     `json:"courier_id"`
	DeliveryID string     `json:"delivery_id"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	CapturedAt time.Time  `json:"captured_at"`
	ETA        *time.Time `json:"eta,omitempty"`
}
