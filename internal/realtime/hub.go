package realtime

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/BearBump/OrderHub/internal/models"
)

// Сколько опережающих кадров комната готова придержать в ожидании
// пропущенного номера, прежде чем сдаться и отдать их по порядку.
const pendingFramesCap = 16

// Hub держит комнаты подписок. Комнаты создаются при первом входе и
// удаляются при выходе последнего участника; доставка событий best-effort,
// без персистентности и реплея.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu      sync.Mutex
	members map[*Conn]struct{}

	// Упорядоченная доставка: nextSeq — следующий ожидаемый номер,
	// pending — опередившие его кадры. 0 в nextSeq значит, что комната
	// ещё не видела ни одного нумерованного кадра.
	nextSeq uint64
	pending map[uint64][]byte
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) Join(roomKey string, c *Conn) {
	h.mu.Lock()
	r, ok := h.rooms[roomKey]
	if !ok {
		r = &room{members: make(map[*Conn]struct{})}
		h.rooms[roomKey] = r
	}
	h.mu.Unlock()

	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()

	c.addRoom(roomKey)
}

func (h *Hub) Leave(roomKey string, c *Conn) {
	h.leave(roomKey, c)
	c.removeRoom(roomKey)
}

func (h *Hub) leave(roomKey string, c *Conn) {
	h.mu.RLock()
	r, ok := h.rooms[roomKey]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.members, c)
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		// Перепроверяем под write-локом: кто-то мог успеть войти.
		h.mu.Lock()
		r.mu.Lock()
		if len(r.members) == 0 && h.rooms[roomKey] == r {
			delete(h.rooms, roomKey)
		}
		r.mu.Unlock()
		h.mu.Unlock()
	}
}

// LeaveAll снимает соединение со всех комнат, вызывается при дисконнекте.
func (h *Hub) LeaveAll(c *Conn) {
	for _, roomKey := range c.roomKeys() {
		h.leave(roomKey, c)
		c.removeRoom(roomKey)
	}
}

// Publish рассылает кадр всем участникам комнаты вне общей нумерации.
// Медленный получатель теряет кадр и не задерживает остальных.
func (h *Hub) Publish(roomKey string, frame []byte) {
	h.publish(roomKey, 0, frame)
}

// PublishEvent кодирует событие state machine и рассылает в его комнату.
// Нумерованные события уходят подписчикам строго по номерам, в порядке
// фиксации переходов.
func (h *Hub) PublishEvent(ev models.Event) {
	frame, err := encodeEvent(ev)
	if err != nil {
		slog.Error("encode event", "type", ev.Type, "room", ev.Room, "error", err)
		return
	}
	h.publish(ev.Room, ev.Seq, frame)
}

// publish раскладывает кадр по номеру и рассылает всё, что стало доставимым.
// Рассылка идёт под локом комнаты: trySend неблокирующий, зато два
// конкурентных publish не могут переставить кадры местами уже на отправке.
func (h *Hub) publish(roomKey string, seq uint64, frame []byte) {
	h.mu.RLock()
	r, ok := h.rooms[roomKey]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.sequence(roomKey, seq, frame) {
		for c := range r.members {
			if !c.trySend(f) {
				slog.Warn("slow consumer, frame dropped",
					"room", roomKey, "role", c.identity.Role, "id", c.identity.ID)
			}
		}
	}
}

// sequence решает судьбу кадра: отдать сразу, придержать до заполнения
// пропуска или отбросить опоздавший. Вызывается под r.mu.
func (r *room) sequence(roomKey string, seq uint64, frame []byte) [][]byte {
	if seq == 0 {
		return [][]byte{frame}
	}
	if r.nextSeq == 0 {
		// Первый нумерованный кадр комнаты задаёт точку отсчёта: комната
		// могла появиться посреди жизни сущности, ждать номер 1 нельзя.
		r.nextSeq = seq + 1
		return [][]byte{frame}
	}
	if seq < r.nextSeq {
		slog.Warn("late frame dropped to keep room order",
			"room", roomKey, "seq", seq, "expected", r.nextSeq)
		return nil
	}
	if seq > r.nextSeq {
		if r.pending == nil {
			r.pending = make(map[uint64][]byte)
		}
		r.pending[seq] = frame
		if len(r.pending) > pendingFramesCap {
			return r.flushPending(roomKey)
		}
		return nil
	}

	out := [][]byte{frame}
	r.nextSeq++
	for {
		f, ok := r.pending[r.nextSeq]
		if !ok {
			return out
		}
		delete(r.pending, r.nextSeq)
		out = append(out, f)
		r.nextSeq++
	}
}

// flushPending отдаёт придержанные кадры по возрастанию номеров: пропуск
// так и не заполнился, дальше ждать — значит копить буфер без предела.
func (r *room) flushPending(roomKey string) [][]byte {
	seqs := make([]uint64, 0, len(r.pending))
	for s := range r.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	out := make([][]byte, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, r.pending[s])
		delete(r.pending, s)
	}
	r.nextSeq = seqs[len(seqs)-1] + 1
	slog.Warn("sequence gap abandoned", "room", roomKey,
		"flushed", len(out), "next_seq", r.nextSeq)
	return out
}

// RoomSize — число участников комнаты, 0 если комнаты нет.
func (h *Hub) RoomSize(roomKey string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomKey]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
