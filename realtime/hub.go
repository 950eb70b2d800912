// Package realtime fans out seat and level events to websocket clients
// grouped into per-table and per-tournament rooms. Delivery is best-effort:
// a slow client gets skipped, never blocks a write path.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Broadcaster is the outbound side services depend on. The Hub satisfies it
// directly; RedisFanout wraps it for multi-instance deployments.
type Broadcaster interface {
	BroadcastToRoom(roomID string, message interface{})
}

// NopBroadcaster drops every event. Useful in tests and tooling.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastToRoom(string, interface{}) {}

type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	Room string

	mu       sync.Mutex
	isClosed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, room string) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: room,
	}
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room]; !ok {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", slog.String("room", client.Room), slog.String("client_id", client.ID))

		case client := <-h.Unregister:
			h.mu.Lock()
			if roomClients, ok := h.rooms[client.Room]; ok {
				if _, okClient := roomClients[client]; okClient {
					client.closeSend()
					delete(roomClients, client)
					if len(roomClients) == 0 {
						delete(h.rooms, client.Room)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", slog.String("room", client.Room), slog.String("client_id", client.ID))
		}
	}
}

// BroadcastToRoom wraps the payload in a Message envelope and delivers it to
// every client currently in the room.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	var envelope Message
	if m, ok := message.(Message); ok {
		envelope = m
	} else {
		envelope = Message{Payload: message}
	}
	envelope.RoomID = roomID

	raw, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", slog.String("room", roomID), slog.Any("error", err))
		return
	}
	h.Deliver(roomID, raw)
}

// Deliver pushes an already-encoded message to local room members. The
// redis fanout subscriber calls this for messages originating on other
// instances.
func (h *Hub) Deliver(roomID string, raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		client.mu.Lock()
		if client.isClosed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.Send <- raw:
		default:
			// Client buffer full; drop rather than block the caller.
		}
		client.mu.Unlock()
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isClosed {
		close(c.Send)
		c.isClosed = true
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients only listen on these sockets; inbound frames are drained
		// to keep pong handling alive and otherwise ignored.
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
