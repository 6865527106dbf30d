package orders

import (
	"sync"

	"github.com/BearBump/OrderHub/internal/models"
)

// keyedMutex сериализует операции по ключу (orderID, courierID, deliveryID)
// без общего глобального лока: несвязанные сущности не ждут друг друга.
// Записи удаляются, как только по ключу никто не держит и не ждёт лок.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock блокирует ключ и возвращает функцию разблокировки.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// roomSequencer нумерует события по комнатам. Номер присваивается, пока
// держится per-entity лок сущности комнаты, поэтому порядок номеров в
// комнате совпадает с порядком фиксации переходов в сторе.
type roomSequencer struct {
	mu   sync.Mutex
	next map[string]uint64
}

func newRoomSequencer() *roomSequencer {
	return &roomSequencer{next: make(map[string]uint64)}
}

// stamp нумерует события со своей комнатой; уже пронумерованные не трогает.
func (q *roomSequencer) stamp(events []models.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range events {
		if events[i].Room == "" || events[i].Seq != 0 {
			continue
		}
		q.next[events[i].Room]++
		events[i].Seq = q.next[events[i].Room]
	}
}
