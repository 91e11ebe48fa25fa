package server

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/room"
	"github.com/fathima-sithara/chatsync/internal/transport"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMsgSize   = 64 * 1024
)

// WSHandler serves the /ws upgrade: one connection per user, identified by
// the user_id and username query params.
type WSHandler struct {
	hub      *Hub
	state    *State
	presence *Presence // may be nil
	logger   *zap.SugaredLogger
}

func NewWSHandler(h *Hub, s *State, p *Presence, logger *zap.SugaredLogger) *WSHandler {
	return &WSHandler{hub: h, state: s, presence: p, logger: logger}
}

func envelope(event string, payload any) transport.Envelope {
	b, _ := json.Marshal(payload)
	return transport.Envelope{Event: event, Payload: b}
}

// Handle runs the connection until the peer goes away. Mount behind the
// fiber/websocket middleware.
func (w *WSHandler) Handle(c *websocket.Conn) {
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil || userID <= 0 {
		_ = c.WriteJSON(map[string]string{"error": "user_id required"})
		_ = c.Close()
		return
	}
	username := c.Query("username")

	cl := newClient(userID, username, c)
	w.hub.addClient(cl)
	go cl.writePump(wsPingInterval, wsWriteWait)

	ctx := context.Background()
	if w.presence != nil {
		if err := w.presence.SetOnline(ctx, userID); err != nil {
			w.logger.Warnf("presence online user=%d: %v", userID, err)
		}
	}
	w.hub.broadcastAll(envelope(transport.EventUserStatus, transport.UserStatusEvent{
		UserID: userID,
		Status: "online",
	}))
	w.logger.Infow("ws connected", "user_id", userID, "username", username)

	c.SetReadLimit(wsMaxMsgSize)
	_ = c.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		var env transport.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		w.dispatch(ctx, cl, env)
	}

	w.hub.removeClient(userID)
	lastSeen := time.Now()
	if w.presence != nil {
		if err := w.presence.SetOffline(ctx, userID, lastSeen); err != nil {
			w.logger.Warnf("presence offline user=%d: %v", userID, err)
		}
	}
	w.hub.broadcastAll(envelope(transport.EventUserStatus, transport.UserStatusEvent{
		UserID:   userID,
		Status:   "offline",
		LastSeen: lastSeen.Format(transport.TimeLayout),
	}))
	w.logger.Infow("ws disconnected", "user_id", userID)
}

func (w *WSHandler) dispatch(ctx context.Context, cl *client, env transport.Envelope) {
	switch env.Event {
	case transport.EventJoin:
		var p transport.JoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Room == "" {
			return
		}
		w.hub.joinRoom(p.Room, cl.userID)

	case transport.EventLeave:
		var p transport.JoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Room == "" {
			return
		}
		w.hub.leaveRoom(p.Room, cl.userID)

	case transport.EventSendMessage:
		w.handleSendMessage(ctx, cl, env.Payload)

	case transport.EventTyping:
		var p transport.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Room == "" {
			return
		}
		w.hub.broadcastToRoom(ctx, p.Room, envelope(transport.EventTyping, transport.TypingEvent{
			UserID:   cl.userID,
			Username: cl.username,
			Room:     p.Room,
		}))

	case transport.EventStopTyping:
		var p transport.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Room == "" {
			return
		}
		w.hub.broadcastToRoom(ctx, p.Room, envelope(transport.EventStopTyping, transport.StopTypingEvent{
			UserID: cl.userID,
			Room:   p.Room,
		}))

	case transport.EventMessageRead:
		var p transport.MessageReadPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		rec, ok := w.state.message(p.MessageID)
		if !ok {
			return
		}
		w.hub.broadcastToRoom(ctx, rec.Room, envelope(transport.EventMessageRead, transport.MessageReadPayload{
			MessageID: p.MessageID,
			Room:      rec.Room,
		}))

	default:
		w.logger.Debugw("unknown ws event", "event", env.Event, "user_id", cl.userID)
	}
}

func (w *WSHandler) handleSendMessage(ctx context.Context, cl *client, raw json.RawMessage) {
	var p transport.SendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	var id room.ID
	var err error
	if p.GroupID > 0 {
		id, err = room.Group(p.GroupID)
	} else {
		id, err = room.Direct(cl.userID, p.ReceiverID)
	}
	if err != nil {
		w.logger.Warnf("send_message from user=%d: %v", cl.userID, err)
		return
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = "text"
	}
	rec := &messageRecord{
		Room:           string(id),
		SenderID:       cl.userID,
		SenderUsername: cl.username,
		Content:        p.Content,
		ContentType:    contentType,
		FilePath:       p.FilePath,
		Timestamp:      time.Now(),
		DisappearTimer: p.DisappearTimer,
	}
	w.state.addMessage(rec)

	w.hub.broadcastToRoom(ctx, rec.Room, envelope(transport.EventReceiveMessage, transport.ReceiveMessagePayload{
		MessageID:      rec.ID,
		SenderID:       rec.SenderID,
		SenderUsername: rec.SenderUsername,
		GroupID:        p.GroupID,
		Room:           rec.Room,
		Content:        rec.Content,
		ContentType:    rec.ContentType,
		FilePath:       rec.FilePath,
		Timestamp:      rec.Timestamp.Format(transport.TimeLayout),
		DisappearTimer: rec.DisappearTimer,
		LocalToken:     p.LocalToken,
	}))
}
