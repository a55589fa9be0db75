package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту
	writeWait = 10 * time.Second

	// Периодичность отправки ping-сообщений клиенту
	pingPeriod = 27 * time.Second

	// Время ожидания pong-ответа
	pongWait = 30 * time.Second

	// Размер буфера канала отправки клиенту; медленный клиент отключается
	clientBufferSize = 32
)

// Типы событий, публикуемых в ленту
const (
	TypeFaucetDrip   = "faucet_drip"
	TypeCodeRedeemed = "code_redeemed"
)

// Event — конверт сообщения ленты событий
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	TS   int64       `json:"ts"`
}

// Hub раздает события выдачи средств и погашения кодов подключенным
// наблюдателям (админ-панель). Лента только на чтение: входящие сообщения
// клиентов игнорируются.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub создает новый хаб событий
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// Publish сериализует событие и рассылает его всем подключенным клиентам.
// Не блокируется: клиент с переполненным буфером отключается.
func (h *Hub) Publish(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{
		Type: eventType,
		Data: data,
		TS:   time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[EventsHub] Не удалось сериализовать событие %s: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Медленный клиент: закрываем соединение, read/write pump приберут остальное
			go c.conn.Close()
		}
	}
}

// ClientCount возвращает число подключенных наблюдателей
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve регистрирует установленное websocket-соединение и обслуживает его
// до закрытия. Вызывается из HTTP-обработчика после Upgrade.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	c.readPump(h)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump читает (и отбрасывает) входящие сообщения, поддерживая pong-таймер
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
