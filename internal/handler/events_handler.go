package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/DevSwayam/faucet-attenomics/internal/events"
)

// EventsHandler обслуживает websocket-ленту событий фасета
type EventsHandler struct {
	hub            *events.Hub
	allowedOrigins map[string]bool
}

// NewEventsHandler создает обработчик ленты событий.
// allowOrigins должен совпадать со списком CORS в main.go.
func NewEventsHandler(hub *events.Hub, allowOrigins []string) *EventsHandler {
	allowed := make(map[string]bool, len(allowOrigins))
	for _, origin := range allowOrigins {
		allowed[origin] = true
	}
	return &EventsHandler{
		hub:            hub,
		allowedOrigins: allowed,
	}
}

func (h *EventsHandler) upgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Пустой Origin — не браузерный клиент (curl, мониторинг), разрешаем
			if origin == "" {
				return true
			}
			if h.allowedOrigins[origin] {
				return true
			}

			log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
			return false
		},
	}
}

// HandleConnection обрабатывает входящее WebSocket соединение на /ws/events
func (h *EventsHandler) HandleConnection(c *gin.Context) {
	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	h.hub.Serve(conn)
}
