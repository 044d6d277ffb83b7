// Package bus fans call-control events out to websocket subscribers.
package bus

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub tracks subscribers and routes messages to them. Messages are either
// tenant-wide or addressed to every connection one user holds.
type Hub struct {
	clients       map[*ClientConnection]struct{}
	clientsByUser map[string][]*ClientConnection
	register      chan *ClientConnection
	unregister    chan *ClientConnection
	broadcast     chan Message
	userBroadcast chan UserMessage
	mu            sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[*ClientConnection]struct{}),
		clientsByUser: make(map[string][]*ClientConnection),
		register:      make(chan *ClientConnection),
		unregister:    make(chan *ClientConnection),
		broadcast:     make(chan Message, 100),
		userBroadcast: make(chan UserMessage, 100),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.clientsByUser[client.UserUUID] = append(h.clientsByUser[client.UserUUID], client)
			h.mu.Unlock()
			log.Infof("subscriber registered for user %s", client.UserUUID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)

				userClients := h.clientsByUser[client.UserUUID]
				for i, c := range userClients {
					if c == client {
						h.clientsByUser[client.UserUUID] = append(userClients[:i], userClients[i+1:]...)
						break
					}
				}
				if len(h.clientsByUser[client.UserUUID]) == 0 {
					delete(h.clientsByUser, client.UserUUID)
				}
			}
			h.mu.Unlock()
			log.Infof("subscriber unregistered for user %s", client.UserUUID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				h.send(client, message)
			}
			h.mu.RUnlock()

		case userMessage := <-h.userBroadcast:
			h.mu.RLock()
			for _, client := range h.clientsByUser[userMessage.UserUUID] {
				h.send(client, userMessage.Message)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(client *ClientConnection, msg Message) {
	select {
	case client.Send <- msg:
	default:
		log.Warnf("dropping message for user %s (send queue full)", client.UserUUID)
	}
}

// Broadcast queues a tenant-wide message.
func (h *Hub) Broadcast(event string, data any) {
	h.broadcast <- Message{Event: event, Timestamp: time.Now(), Data: data}
}

// BroadcastToUser queues a message for every connection the user holds.
func (h *Hub) BroadcastToUser(userUUID, event string, data any) {
	h.userBroadcast <- UserMessage{
		UserUUID: userUUID,
		Message:  Message{Event: event, Timestamp: time.Now(), Data: data},
	}
}

// ServeWS upgrades a subscriber connection. Identity comes from the
// X-User-UUID header, or the user_uuid query parameter for clients that
// cannot set headers on the upgrade request.
func (h *Hub) ServeWS(c echo.Context) error {
	userUUID := c.Request().Header.Get("X-User-UUID")
	if userUUID == "" {
		userUUID = c.QueryParam("user_uuid")
	}
	if userUUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing X-User-UUID header or user_uuid param")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return nil
	}

	client := &ClientConnection{
		UserUUID: userUUID,
		Conn:     conn,
		Send:     make(chan Message, 256),
		hub:      h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}
