package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/chatsync/internal/transport"
)

const clientSendBuffer = 256

// client is one connected websocket user.
type client struct {
	userID   int
	username string
	conn     *websocket.Conn
	send     chan transport.Envelope
}

func newClient(userID int, username string, conn *websocket.Conn) *client {
	return &client{
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan transport.Envelope, clientSendBuffer),
	}
}

// trySend never blocks; a slow consumer drops frames.
func (c *client) trySend(env transport.Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

func (c *client) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub tracks connected clients and room membership.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]*client         // userID -> client
	rooms   map[string]map[int]bool // room -> userIDs

	// PublishToOtherInstances, when set, mirrors room broadcasts to a
	// pubsub channel so peer instances can deliver them too.
	PublishToOtherInstances func(ctx context.Context, channel string, payload []byte) error
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int]*client),
		rooms:   make(map[string]map[int]bool),
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.userID] = c
}

func (h *Hub) removeClient(userID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[userID]; ok {
		close(c.send)
		delete(h.clients, userID)
	}
	for _, members := range h.rooms {
		delete(members, userID)
	}
}

func (h *Hub) joinRoom(room string, userID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[int]bool)
	}
	h.rooms[room][userID] = true
}

func (h *Hub) leaveRoom(room string, userID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// broadcastToRoom delivers an event to every member of a room on this
// instance and mirrors it to peers when pubsub is wired.
func (h *Hub) broadcastToRoom(ctx context.Context, room string, env transport.Envelope) {
	h.mu.RLock()
	for userID := range h.rooms[room] {
		if c, ok := h.clients[userID]; ok {
			c.trySend(env)
		}
	}
	h.mu.RUnlock()

	if h.PublishToOtherInstances != nil {
		if b, err := json.Marshal(env); err == nil {
			_ = h.PublishToOtherInstances(ctx, "room:"+room, b)
		}
	}
}

// broadcastAll delivers an event to every connected client, e.g. presence
// changes.
func (h *Hub) broadcastAll(env transport.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.trySend(env)
	}
}

// deliverLocal fans a frame from the pubsub channel out to local members
// only, without re-publishing.
func (h *Hub) deliverLocal(room string, env transport.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID := range h.rooms[room] {
		if c, ok := h.clients[userID]; ok {
			c.trySend(env)
		}
	}
}
