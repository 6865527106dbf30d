package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// StateMachine — операции ядра, доступные курьерским клиентам через канал.
type StateMachine interface {
	RecordLocation(ctx context.Context, courierID, deliveryID string, sample models.CourierLocationSample) ([]models.Event, error)
	AcceptDelivery(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error)
	Pickup(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error)
	CompleteDelivery(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error)
}

// EventSink публикует события зафиксированных переходов: инвалидация кэша,
// fan-out по комнатам, брокер.
type EventSink interface {
	Dispatch(ctx context.Context, events []models.Event)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type ManagerConfig struct {
	Heartbeat  time.Duration // интервал ping
	ReadWait   time.Duration // окно тишины до принудительного дисконнекта
	WriteWait  time.Duration
	SendBuffer int

	LocationRateLimit  int64 // сэмплов на курьера за окно
	LocationRateWindow time.Duration
}

func (c *ManagerConfig) defaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.ReadWait <= 0 {
		c.ReadWait = 3 * c.Heartbeat
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.LocationRateLimit <= 0 {
		c.LocationRateLimit = 10
	}
	if c.LocationRateWindow <= 0 {
		c.LocationRateWindow = time.Second
	}
}

// Manager — вебсокетная точка входа канала: handshake, авторизация подписок,
// приём курьерских сообщений и их проводка в state machine.
type Manager struct {
	cfg        ManagerConfig
	hub        *Hub
	verifier   TokenVerifier
	authorizer *Authorizer
	sm         StateMachine
	sink       EventSink
	limiter    RateLimiter

	upgrader websocket.Upgrader
}

func NewManager(cfg ManagerConfig, hub *Hub, verifier TokenVerifier, authorizer *Authorizer, sm StateMachine, sink EventSink, limiter RateLimiter) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:        cfg,
		hub:        hub,
		verifier:   verifier,
		authorizer: authorizer,
		sm:         sm,
		sink:       sink,
		limiter:    limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS — GET /ws?token=... Неавторизованный handshake закрывается сразу,
// до апгрейда; комнаты при подключении не раздаются, клиент подписывается сам.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := m.verifier.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !identity.ExpiresAt.IsZero() && !identity.ExpiresAt.After(time.Now()) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(ws, identity, m.cfg.SendBuffer)
	slog.Info("client connected", "role", identity.Role, "id", identity.ID)

	go c.writePump(m.cfg.Heartbeat, m.cfg.WriteWait)
	c.readPump(m.cfg.ReadWait, m.handleInbound)

	m.hub.LeaveAll(c)
	c.close()
	slog.Info("client disconnected", "role", identity.Role, "id", identity.ID)
}

// handleInbound разбирает входящий кадр. Бизнес-валидации здесь нет, только
// авторизация и отбраковка кривых кадров: всё остальное решает state machine.
func (m *Manager) handleInbound(c *Conn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.trySend(encodeError("malformed envelope"))
		return
	}

	ctx := context.Background()
	switch env.Type {
	case MsgSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Room == "" {
			c.trySend(encodeError("malformed payload"))
			return
		}
		if err := m.authorizer.CanJoin(ctx, c.identity, p.Room); err != nil {
			c.trySend(encodeError("unauthorized"))
			return
		}
		m.hub.Join(p.Room, c)

	case MsgUnsubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Room == "" {
			c.trySend(encodeError("malformed payload"))
			return
		}
		m.hub.Leave(p.Room, c)

	case MsgCourierLocationUpdate:
		m.handleLocationUpdate(ctx, c, env.Payload)

	case MsgDeliveryAccept:
		m.handleDeliveryAction(ctx, c, env.Payload, m.sm.AcceptDelivery)
	case MsgDeliveryPickup:
		m.handleDeliveryAction(ctx, c, env.Payload, m.sm.Pickup)
	case MsgDeliveryComplete:
		m.handleDeliveryAction(ctx, c, env.Payload, m.sm.CompleteDelivery)

	case MsgCourierStatusUpdate:
		m.handleStatusUpdate(ctx, c, env.Payload)

	default:
		c.trySend(encodeError("unknown message type"))
	}
}

func (m *Manager) handleLocationUpdate(ctx context.Context, c *Conn, raw json.RawMessage) {
	if c.identity.Role != "courier" {
		c.trySend(encodeError("unauthorized"))
		return
	}
	var p LocationUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.DeliveryID == "" {
		c.trySend(encodeError("malformed payload"))
		return
	}

	if m.limiter != nil {
		allowed, n, err := m.limiter.Allow(ctx, "loc:"+c.identity.ID, m.cfg.LocationRateLimit, m.cfg.LocationRateWindow)
		if err != nil {
			// Лимитер недоступен — пропускаем, сэмплы важнее лимита.
			slog.Warn("location rate limiter unavailable", "error", err)
		} else if !allowed {
			slog.Info("location update rate limited", "courier_id", c.identity.ID, "count", n)
			return
		}
	}

	events, err := m.sm.RecordLocation(ctx, c.identity.ID, p.DeliveryID, models.CourierLocationSample{
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		CapturedAt: p.CapturedAt,
		ETA:        p.ETA,
	})
	if err != nil {
		c.trySend(encodeError(publicError(err)))
		return
	}
	m.sink.Dispatch(ctx, events)
}

type deliveryAction func(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error)

func (m *Manager) handleDeliveryAction(ctx context.Context, c *Conn, raw json.RawMessage, act deliveryAction) {
	if c.identity.Role != "courier" {
		c.trySend(encodeError("unauthorized"))
		return
	}
	var p DeliveryActionPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.DeliveryID == "" {
		c.trySend(encodeError("malformed payload"))
		return
	}

	_, events, err := act(ctx, p.DeliveryID, c.identity.ID)
	if err != nil {
		c.trySend(encodeError(publicError(err)))
		return
	}
	m.sink.Dispatch(ctx, events)
}

// handleStatusUpdate — общий courier:status:update, статус в payload
// выбирает конкретный переход доставки.
func (m *Manager) handleStatusUpdate(ctx context.Context, c *Conn, raw json.RawMessage) {
	var p StatusUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.DeliveryID == "" {
		c.trySend(encodeError("malformed payload"))
		return
	}

	var act deliveryAction
	switch p.Status {
	case models.DeliveryStatusAccepted:
		act = m.sm.AcceptDelivery
	case models.DeliveryStatusPickedUp:
		act = m.sm.Pickup
	case models.DeliveryStatusDelivered:
		act = m.sm.CompleteDelivery
	default:
		c.trySend(encodeError("malformed payload"))
		return
	}

	payload, _ := json.Marshal(DeliveryActionPayload{DeliveryID: p.DeliveryID})
	m.handleDeliveryAction(ctx, c, payload, act)
}

// publicError — текст ошибки для клиента, без внутренних деталей и без
// подсказок о существовании чужих сущностей.
func publicError(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrNotFound):
		return "unauthorized"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid transition"
	case errors.Is(err, models.ErrCourierBusy):
		return "courier busy"
	default:
		return "internal error"
	}
}
