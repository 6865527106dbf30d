package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) { select {} }
func (f *fakeSocket) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}
func (f *fakeSocket) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}
func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testConn(role, id string, buf int) *Conn {
	return newConn(&fakeSocket{}, Identity{Role: role, ID: id}, buf)
}

func TestHub_JoinPublishLeave(t *testing.T) {
	h := NewHub()
	c1 := testConn("customer", "u1", 8)
	c2 := testConn("customer", "u2", 8)

	h.Join("order:O1", c1)
	h.Join("order:O1", c2)
	require.Equal(t, 2, h.RoomSize("order:O1"))

	h.Publish("order:O1", []byte(`{"type":"x"}`))
	require.Len(t, c1.send, 1)
	require.Len(t, c2.send, 1)

	h.Leave("order:O1", c1)
	require.Equal(t, 1, h.RoomSize("order:O1"))

	// комната умирает с последним участником
	h.Leave("order:O1", c2)
	require.Equal(t, 0, h.RoomSize("order:O1"))
	h.mu.RLock()
	_, exists := h.rooms["order:O1"]
	h.mu.RUnlock()
	require.False(t, exists)
}

func TestHub_PublishToUnrelatedRoomIsNoop(t *testing.T) {
	h := NewHub()
	c := testConn("customer", "u1", 8)
	h.Join("order:O1", c)

	h.Publish("order:O2", []byte("frame"))
	require.Empty(t, c.send)
}

func TestHub_SlowConsumerDoesNotBlockOthers(t *testing.T) {
	h := NewHub()
	slow := testConn("customer", "u1", 1)
	fast := testConn("customer", "u2", 8)
	h.Join("order:O1", slow)
	h.Join("order:O1", fast)

	// буфер slow на 1 кадр: второй Publish обязан пройти мгновенно
	done := make(chan struct{})
	go func() {
		h.Publish("order:O1", []byte("a"))
		h.Publish("order:O1", []byte("b"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow consumer")
	}
	require.Len(t, slow.send, 1)
	require.Len(t, fast.send, 2)
}

func TestHub_LeaveAllOnDisconnect(t *testing.T) {
	h := NewHub()
	c := testConn("courier", "c1", 8)
	h.Join("delivery:D1", c)
	h.Join("courier:c1", c)

	h.LeaveAll(c)
	require.Equal(t, 0, h.RoomSize("delivery:D1"))
	require.Equal(t, 0, h.RoomSize("courier:c1"))
	require.Empty(t, c.roomKeys())
}

func TestHub_PublishEventEncodesEnvelope(t *testing.T) {
	h := NewHub()
	c := testConn("customer", "u1", 8)
	h.Join(models.OrderRoom("O1"), c)

	h.PublishEvent(models.Event{
		Type: models.EventOrderStatusChanged,
		Room: models.OrderRoom("O1"),
		Payload: models.OrderStatusChangedPayload{
			OrderID: "O1", OldStatus: "pending", NewStatus: "confirmed",
		},
	})

	require.Len(t, c.send, 1)
	frame := <-c.send
	require.Contains(t, string(frame), `"type":"order:status:changed"`)
	require.Contains(t, string(frame), `"new_status":"confirmed"`)
}

func statusEvent(orderID string, seq uint64, status string) models.Event {
	return models.Event{
		Type: models.EventOrderStatusChanged,
		Room: models.OrderRoom(orderID),
		Seq:  seq,
		Payload: models.OrderStatusChangedPayload{
			OrderID: orderID, NewStatus: status,
		},
	}
}

func drainFrames(c *Conn) []string {
	var out []string
	for {
		select {
		case f := <-c.send:
			out = append(out, string(f))
		default:
			return out
		}
	}
}

func TestHub_SequencedEventsDeliverInCommitOrder(t *testing.T) {
	h := NewHub()
	c := testConn("customer", "u1", 8)
	h.Join(models.OrderRoom("O1"), c)

	h.PublishEvent(statusEvent("O1", 1, "confirmed"))
	// Кадр номер 3 обогнал второй: hub обязан придержать его.
	h.PublishEvent(statusEvent("O1", 3, "ready"))
	require.Len(t, c.send, 1)

	h.PublishEvent(statusEvent("O1", 2, "preparing"))

	frames := drainFrames(c)
	require.Len(t, frames, 3)
	require.Contains(t, frames[0], `"new_status":"confirmed"`)
	require.Contains(t, frames[1], `"new_status":"preparing"`)
	require.Contains(t, frames[2], `"new_status":"ready"`)
}

func TestHub_LateSequencedFrameDropped(t *testing.T) {
	h := NewHub()
	c := testConn("customer", "u1", 8)
	h.Join(models.OrderRoom("O1"), c)

	// Комната появилась посреди жизни заказа: первый увиденный номер
	// становится точкой отсчёта, опоздавший меньший номер отбрасывается.
	h.PublishEvent(statusEvent("O1", 2, "preparing"))
	h.PublishEvent(statusEvent("O1", 1, "confirmed"))

	frames := drainFrames(c)
	require.Len(t, frames, 1)
	require.Contains(t, frames[0], `"new_status":"preparing"`)
}

func TestHub_SequenceGapFlushedAtCap(t *testing.T) {
	h := NewHub()
	c := testConn("customer", "u1", 32)
	h.Join(models.OrderRoom("O1"), c)

	h.PublishEvent(statusEvent("O1", 1, "s1"))
	// Номер 2 так и не придёт: накопив pendingFramesCap+1 кадров,
	// комната сдаётся и отдаёт их по возрастанию номеров.
	for seq := uint64(3); seq <= 3+pendingFramesCap; seq++ {
		h.PublishEvent(statusEvent("O1", seq, fmt.Sprintf("s%d", seq)))
	}

	frames := drainFrames(c)
	require.Len(t, frames, pendingFramesCap+2)
	require.Contains(t, frames[0], `"new_status":"s1"`)
	for i, seq := 1, uint64(3); seq <= 3+pendingFramesCap; i, seq = i+1, seq+1 {
		require.Contains(t, frames[i], fmt.Sprintf(`"new_status":"s%d"`, seq))
	}

	// После сброса нумерация продолжается со следующего номера.
	h.PublishEvent(statusEvent("O1", 3+pendingFramesCap+1, "tail"))
	frames = drainFrames(c)
	require.Len(t, frames, 1)
	require.Contains(t, frames[0], `"new_status":"tail"`)
}
