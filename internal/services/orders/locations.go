package orders

import (
	"sync"

	"github.com/BearBump/OrderHub/internal/models"
)

// locationBook хранит только последний принятый location-сэмпл на пару
// (курьер, доставка). Это эфемерное состояние: в основной стор оно не пишется.
type locationBook struct {
	mu   sync.RWMutex
	last map[string]models.CourierLocationSample
}

func newLocationBook() *locationBook {
	return &locationBook{last: make(map[string]models.CourierLocationSample)}
}

func locationKey(courierID, deliveryID string) string {
	return courierID + "|" + deliveryID
}

func (b *locationBook) Last(courierID, deliveryID string) (models.CourierLocationSample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.last[locationKey(courierID, deliveryID)]
	return s, ok
}

func (b *locationBook) Set(s models.CourierLocationSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[locationKey(s.CourierID, s.DeliveryID)] = s
}

func (b *locationBook) Forget(courierID, deliveryID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, locationKey(courierID, deliveryID))
}
