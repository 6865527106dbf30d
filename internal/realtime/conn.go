package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socket — минимальная поверхность *websocket.Conn, чтобы пампы можно было
// тестировать без реального апгрейда.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn — одно клиентское соединение: identity, набор комнат и буферизованный
// исходящий канал. Запись в канал неблокирующая, переполнение буфера роняет
// кадр, а не хаб.
type Conn struct {
	ws       socket
	identity Identity

	send   chan []byte
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConn(ws socket, id Identity, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Conn{
		ws:       ws,
		identity: id,
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Conn) Identity() Identity { return c.identity }

// trySend кладёт кадр в исходящий буфер. false — буфер полон или
// соединение закрыто.
func (c *Conn) trySend(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

func (c *Conn) addRoom(key string) {
	c.mu.Lock()
	c.rooms[key] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) removeRoom(key string) {
	c.mu.Lock()
	delete(c.rooms, key)
	c.mu.Unlock()
}

func (c *Conn) roomKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	return keys
}

// writePump пишет кадры из буфера и держит ping. Завершается по close()
// или по истечению credential: протухший токен закрывает соединение,
// клиент обязан переподключиться со свежим.
func (c *Conn) writePump(heartbeat, writeWait time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	var expiry <-chan time.Time
	if !c.identity.ExpiresAt.IsZero() {
		t := time.NewTimer(time.Until(c.identity.ExpiresAt))
		defer t.Stop()
		expiry = t.C
	}

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-expiry:
			slog.Info("credential expired, closing connection",
				"role", c.identity.Role, "id", c.identity.ID)
			c.close()
			return
		case <-c.closed:
			return
		}
	}
}

// readPump читает входящие кадры и отдаёт их обработчику. Дедлайн чтения
// продлевается pong-ами; тишина дольше окна — принудительный дисконнект.
func (c *Conn) readPump(readWait time.Duration, handle func(*Conn, []byte)) {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.close()
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readWait))
		handle(c, data)
	}
}
