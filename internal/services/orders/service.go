package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/OrderHub/internal/cache"
	"github.com/BearBump/OrderHub/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	SaveOrderStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Order, error)
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
	GetActiveDeliveryForCourier(ctx context.Context, courierID string) (*models.Delivery, error)
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	SaveDeliveryStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Delivery, error)
}

// Роли акторов переходов.
const (
	RoleCustomer   = "customer"
	RoleCourier    = "courier"
	RoleRestaurant = "restaurant"
	RolePlatform   = "platform"
)

type Actor struct {
	Role string
	ID   string
}

// Какие роли могут переводить заказ в целевой статус. Привязку актора
// к конкретной сущности дополнительно проверяет authorizeTransition.
var transitionRoles = map[string][]string{
	models.OrderStatusConfirmed: {RolePlatform},
	models.OrderStatusPreparing: {RoleRestaurant, RolePlatform},
	models.OrderStatusReady:     {RoleRestaurant, RolePlatform},
	models.OrderStatusPickedUp:  {RoleCourier},
	models.OrderStatusDelivered: {RoleCourier},
	models.OrderStatusCancelled: {RoleCustomer, RoleRestaurant, RolePlatform},
}

// Service — state machine заказов и доставок. Сам не трогает ни сокеты,
// ни кэш: каждый зафиксированный переход возвращает список событий,
// которые публикует оркестрирующий слой. Все операции над одной сущностью
// сериализованы per-entity локом; лок снимается до публикации событий,
// но события успевают получить номер в своей комнате ещё под локом, и hub
// доставляет их подписчикам строго по номерам.
type Service struct {
	repo Repository

	orderLocks    *keyedMutex
	courierLocks  *keyedMutex
	deliveryLocks *keyedMutex
	locations     *locationBook
	seq           *roomSequencer

	now   func() time.Time
	newID func() string
}

func New(repo Repository) *Service {
	return &Service{
		repo:          repo,
		orderLocks:    newKeyedMutex(),
		courierLocks:  newKeyedMutex(),
		deliveryLocks: newKeyedMutex(),
		locations:     newLocationBook(),
		seq:           newRoomSequencer(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithIDGenerator(newID func() string) *Service {
	if newID != nil {
		s.newID = newID
	}
	return s
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// Transition валидирует и фиксирует переход статуса заказа. Порядок внутри
// лока: прочитать, решить, записать; публикация — забота вызывающего.
func (s *Service) Transition(ctx context.Context, orderID, target string, actor Actor, reason string) (*models.Order, []models.Event, error) {
	if !models.IsOrderStatus(target) || target == models.OrderStatusPending {
		return nil, nil, errors.Wrapf(models.ErrInvalidTransition, "unknown target status %q", target)
	}

	unlock := s.orderLocks.Lock(orderID)
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if err := authorizeTransition(o, target, actor); err != nil {
		unlock()
		return nil, nil, err
	}
	if !models.CanTransitionOrder(o.Status, target) {
		unlock()
		return nil, nil, errors.Wrapf(models.ErrInvalidTransition, "%s -> %s", o.Status, target)
	}

	now := s.now()
	upd, err := s.repo.SaveOrderStatus(ctx, orderID, o.Status, target, now)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	// Номер события выдаётся до снятия лока: порядок номеров в комнате
	// заказа равен порядку фиксации переходов.
	events := []models.Event{orderStatusEvent(upd, o.Status, target, actor, reason, now)}
	s.seq.stamp(events)
	unlock()
	return upd, events, nil
}

// AssignCourier создаёт доставку для подтверждённого/готового заказа.
// Инвариант "одна активная доставка на курьера" проверяется здесь и ещё раз
// держится частичным уникальным индексом в сторе.
func (s *Service) AssignCourier(ctx context.Context, orderID, courierID string) (*models.Delivery, []models.Event, error) {
	// Порядок локов фиксированный: заказ, затем курьер.
	unlockOrder := s.orderLocks.Lock(orderID)
	defer unlockOrder()
	unlockCourier := s.courierLocks.Lock(courierID)
	defer unlockCourier()

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.Status != models.OrderStatusConfirmed && o.Status != models.OrderStatusReady {
		return nil, nil, errors.Wrapf(models.ErrInvalidTransition, "cannot assign courier to %s order", o.Status)
	}

	active, err := s.repo.GetActiveDeliveryForCourier(ctx, courierID)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		return nil, nil, errors.Wrapf(models.ErrCourierBusy, "courier %s has active delivery %s", courierID, active.ID)
	}

	now := s.now()
	d := &models.Delivery{
		ID:         s.newID(),
		OrderID:    orderID,
		CourierID:  courierID,
		Status:     models.DeliveryStatusAssigned,
		AssignedAt: now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateDelivery(ctx, d); err != nil {
		return nil, nil, err
	}

	// Адресовано конкретному курьеру, не broadcast.
	ev := models.Event{
		Type: models.EventDeliveryAssigned,
		Room: models.CourierRoom(courierID),
		Payload: models.DeliveryAssignedPayload{
			DeliveryID: d.ID,
			OrderID:    orderID,
			CourierID:  courierID,
			AssignedAt: now,
		},
		InvalidateKeys: []string{cache.OrderKey(orderID)},
	}
	events := []models.Event{ev}
	s.seq.stamp(events)
	return d, events, nil
}

// RecordLocation принимает сэмпл только с монотонно растущим timestamp на
// пару (курьер, доставка). Устаревшие сэмплы молча отбрасываются — это
// политика "последний пишет, но только если новее", а не очередь.
func (s *Service) RecordLocation(ctx context.Context, courierID, deliveryID string, sample models.CourierLocationSample) ([]models.Event, error) {
	sample.CourierID = courierID
	sample.DeliveryID = deliveryID

	unlock := s.deliveryLocks.Lock(deliveryID)
	defer unlock()

	d, err := s.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d.CourierID != courierID {
		return nil, models.ErrUnauthorized
	}
	if models.IsTerminalDeliveryStatus(d.Status) {
		slog.Info("location sample for inactive delivery dropped",
			"courier_id", courierID, "delivery_id", deliveryID, "status", d.Status)
		return nil, nil
	}
	if last, ok := s.locations.Last(courierID, deliveryID); ok && !sample.CapturedAt.After(last.CapturedAt) {
		slog.Info("stale location sample dropped",
			"courier_id", courierID, "delivery_id", deliveryID,
			"captured_at", sample.CapturedAt, "last_at", last.CapturedAt)
		return nil, nil
	}

	s.locations.Set(sample)
	events := []models.Event{{
		Type:    models.EventCourierLocationChanged,
		Room:    models.DeliveryRoom(deliveryID),
		Payload: sample,
	}}
	s.seq.stamp(events)
	return events, nil
}

// LastLocation возвращает последний принятый сэмпл для пары (курьер, доставка).
func (s *Service) LastLocation(courierID, deliveryID string) (models.CourierLocationSample, bool) {
	return s.locations.Last(courierID, deliveryID)
}

// AcceptDelivery: assigned -> accepted, только назначенным курьером.
func (s *Service) AcceptDelivery(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error) {
	return s.deliveryTransition(ctx, deliveryID, courierID, models.DeliveryStatusAccepted, "")
}

// Pickup переводит доставку в picked_up и зеркалирует переход заказа
// ready -> picked_up.
func (s *Service) Pickup(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error) {
	return s.deliveryTransition(ctx, deliveryID, courierID, models.DeliveryStatusPickedUp, models.OrderStatusPickedUp)
}

// CompleteDelivery: picked_up -> delivered плюс зеркальный переход заказа.
// Последний location-сэмпл пары забывается — доставка закончилась.
func (s *Service) CompleteDelivery(ctx context.Context, deliveryID, courierID string) (*models.Delivery, []models.Event, error) {
	d, evs, err := s.deliveryTransition(ctx, deliveryID, courierID, models.DeliveryStatusDelivered, models.OrderStatusDelivered)
	if err == nil {
		s.locations.Forget(courierID, deliveryID)
	}
	return d, evs, err
}

// deliveryTransition — общий путь статусных переходов доставки. При непустом
// mirrorOrderStatus сначала фиксируется зеркальный переход заказа: если он
// невозможен, доставка не трогается.
func (s *Service) deliveryTransition(ctx context.Context, deliveryID, courierID, target, mirrorOrderStatus string) (*models.Delivery, []models.Event, error) {
	unlock := s.deliveryLocks.Lock(deliveryID)
	defer unlock()

	d, err := s.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	if d.CourierID != courierID {
		return nil, nil, models.ErrUnauthorized
	}
	if !models.CanTransitionDelivery(d.Status, target) {
		return nil, nil, errors.Wrapf(models.ErrInvalidTransition, "delivery %s -> %s", d.Status, target)
	}

	var events []models.Event
	if mirrorOrderStatus != "" {
		_, orderEvents, err := s.Transition(ctx, d.OrderID, mirrorOrderStatus, Actor{Role: RoleCourier, ID: courierID}, "")
		if err != nil {
			return nil, nil, err
		}
		events = append(events, orderEvents...)
	}

	now := s.now()
	upd, err := s.repo.SaveDeliveryStatus(ctx, deliveryID, d.Status, target, now)
	if err != nil {
		return nil, nil, err
	}

	events = append(events, models.Event{
		Type: models.EventDeliveryStatusChanged,
		Room: models.DeliveryRoom(deliveryID),
		Payload: models.DeliveryStatusChangedPayload{
			DeliveryID: deliveryID,
			OrderID:    d.OrderID,
			OldStatus:  d.Status,
			NewStatus:  target,
			ChangedAt:  now,
		},
		InvalidateKeys: []string{cache.OrderKey(d.OrderID)},
	})
	// Зеркальное событие заказа уже пронумеровано внутри Transition,
	// здесь номер получает только событие доставки.
	s.seq.stamp(events)
	return upd, events, nil
}

func authorizeTransition(o *models.Order, target string, actor Actor) error {
	roles, ok := transitionRoles[target]
	if !ok {
		return errors.Wrapf(models.ErrInvalidTransition, "unknown target status %q", target)
	}
	allowed := false
	for _, r := range roles {
		if r == actor.Role {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.ErrUnauthorized
	}

	switch actor.Role {
	case RoleCustomer:
		if o.CustomerID != actor.ID {
			return models.ErrUnauthorized
		}
	case RoleCourier:
		if o.CourierID == nil || *o.CourierID != actor.ID {
			return models.ErrUnauthorized
		}
	case RoleRestaurant:
		if o.RestaurantID != actor.ID {
			return models.ErrUnauthorized
		}
	}
	return nil
}

func orderStatusEvent(o *models.Order, oldStatus, newStatus string, actor Actor, reason string, ts time.Time) models.Event {
	ev := models.Event{
		Type: models.EventOrderStatusChanged,
		Room: models.OrderRoom(o.ID),
		Payload: models.OrderStatusChangedPayload{
			OrderID:   o.ID,
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Actor:     actor.Role,
			Reason:    reason,
			ChangedAt: ts,
		},
		InvalidateKeys: []string{cache.OrderKey(o.ID)},
	}
	// Закрывающие статусы дополнительно инвалидируют списочные кэши.
	if models.IsClosingOrderStatus(newStatus) {
		ev.InvalidatePrefixes = []string{cache.OrdersListPrefix(o.CustomerID)}
	}
	return ev
}
