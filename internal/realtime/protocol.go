package realtime

import (
	"encoding/json"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/pkg/errors"
)

// Типы входящих сообщений от клиентов.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"

	MsgCourierLocationUpdate = "courier:location:update"
	MsgCourierStatusUpdate   = "courier:status:update"
	MsgDeliveryAccept        = "delivery:accept"
	MsgDeliveryPickup        = "delivery:pickup"
	MsgDeliveryComplete      = "delivery:complete"

	// Сервисный ответ об ошибке, единственный исходящий тип помимо событий.
	MsgError = "error"
)

// Envelope — рамка всех сообщений канала в обе стороны.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubscribePayload struct {
	Room string `json:"room"`
}

type LocationUpdatePayload struct {
	DeliveryID string     `json:"delivery_id"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	CapturedAt time.Time  `json:"captured_at"`
	ETA        *time.Time `json:"eta,omitempty"`
}

type DeliveryActionPayload struct {
	DeliveryID string `json:"delivery_id"`
}

// StatusUpdatePayload — курьерский запрос смены статуса своей доставки.
type StatusUpdatePayload struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// encodeEvent переводит событие state machine в wire-формат канала.
func encodeEvent(ev models.Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event payload")
	}
	b, err := json.Marshal(Envelope{Type: ev.Type, Payload: payload})
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

func encodeError(msg string) []byte {
	payload, _ := json.Marshal(ErrorPayload{Message: msg})
	b, _ := json.Marshal(Envelope{Type: MsgError, Payload: payload})
	return b
}
