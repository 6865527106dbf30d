package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
)

// Identity — кем аутентифицировано соединение.
type Identity struct {
	Role      string // customer | courier | platform
	ID        string
	ExpiresAt time.Time
}

// TokenVerifier резолвит opaque credential из handshake. Выпуск токенов
// живёт в другом сервисе, здесь только проверка.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// StaticTokenVerifier — табличный verifier для демо и тестов: токен к
// identity, без криптографии.
type StaticTokenVerifier map[string]Identity

func (v StaticTokenVerifier) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := v[token]
	if !ok {
		return Identity{}, models.ErrUnauthorized
	}
	return id, nil
}

type entityReader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
}

// Authorizer решает, можно ли identity вступить в комнату. Любой отказ,
// включая несуществующую сущность, наружу выглядит одинаково: ErrUnauthorized
// без деталей.
type Authorizer struct {
	reader entityReader
}

func NewAuthorizer(r entityReader) *Authorizer {
	return &Authorizer{reader: r}
}

func (a *Authorizer) CanJoin(ctx context.Context, id Identity, roomKey string) error {
	kind, entityID, ok := parseRoom(roomKey)
	if !ok {
		return models.ErrUnauthorized
	}

	if id.Role == "platform" {
		return nil
	}

	switch kind {
	case "order":
		o, err := a.reader.GetOrder(ctx, entityID)
		if err != nil {
			return models.ErrUnauthorized
		}
		switch id.Role {
		case "customer":
			if o.CustomerID == id.ID {
				return nil
			}
		case "courier":
			if o.CourierID != nil && *o.CourierID == id.ID {
				return nil
			}
		}
	case "delivery":
		d, err := a.reader.GetDelivery(ctx, entityID)
		if err != nil {
			return models.ErrUnauthorized
		}
		if id.Role == "courier" && d.CourierID == id.ID {
			return nil
		}
		// подписка клиента на доставку своего заказа
		if id.Role == "customer" {
			o, err := a.reader.GetOrder(ctx, d.OrderID)
			if err == nil && o.CustomerID == id.ID {
				return nil
			}
		}
	case "courier":
		if id.Role == "courier" && entityID == id.ID {
			return nil
		}
	}
	return models.ErrUnauthorized
}

func parseRoom(roomKey string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(roomKey, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch kind {
	case "order", "delivery", "courier":
		return kind, id, true
	}
	return "", "", false
}
