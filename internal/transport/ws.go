package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/chaterr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// WS is the websocket transport. One connection per session; rooms are
// joined and left over the same connection as the user switches
// conversations.
type WS struct {
	url  string
	conn *websocket.Conn
	log  *zap.SugaredLogger

	mu       sync.Mutex
	handlers map[string][]Handler
	joined   map[string]struct{}

	send      chan Envelope
	done      chan struct{}
	connected atomic.Bool
	closeOnce sync.Once
}

func NewWS(url string, log *zap.SugaredLogger) *WS {
	return &WS{
		url:      url,
		log:      log,
		handlers: make(map[string][]Handler),
		joined:   make(map[string]struct{}),
		send:     make(chan Envelope, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// Connect dials the server and starts the read/write pumps. Call once.
func (w *WS) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	w.conn = conn
	w.connected.Store(true)
	go w.readPump()
	go w.writePump()
	return nil
}

// On registers a handler for an inbound event. Handlers run on the read
// pump goroutine, one frame at a time.
func (w *WS) On(event string, h Handler) {
	w.mu.Lock()
	w.handlers[event] = append(w.handlers[event], h)
	w.mu.Unlock()
}

// JoinRoom emits a join event once per room; joining an already joined room
// is a no-op.
func (w *WS) JoinRoom(room string) error {
	w.mu.Lock()
	if _, ok := w.joined[room]; ok {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	if err := w.Send(EventJoin, JoinPayload{Room: room}); err != nil {
		return err
	}
	w.mu.Lock()
	w.joined[room] = struct{}{}
	w.mu.Unlock()
	return nil
}

func (w *WS) LeaveRoom(room string) error {
	w.mu.Lock()
	_, ok := w.joined[room]
	delete(w.joined, room)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return w.Send(EventLeave, JoinPayload{Room: room})
}

// Send emits an event. Fails fast when disconnected; there is no retry and
// no buffering across a dropped connection.
func (w *WS) Send(event string, payload any) error {
	if !w.connected.Load() {
		return chaterr.ErrDisconnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case w.send <- Envelope{Event: event, Payload: raw}:
		return nil
	case <-w.done:
		return chaterr.ErrDisconnected
	}
}

func (w *WS) Connected() bool { return w.connected.Load() }

func (w *WS) Close() error {
	w.shutdown()
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

func (w *WS) shutdown() {
	w.closeOnce.Do(func() {
		w.connected.Store(false)
		close(w.done)
	})
}

func (w *WS) readPump() {
	defer func() {
		w.shutdown()
		_ = w.conn.Close()
	}()
	w.conn.SetReadLimit(maxMessageSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.log.Debugw("read message", "err", err)
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.log.Warnw("bad frame", "err", err)
			continue
		}
		w.dispatch(env)
	}
}

func (w *WS) dispatch(env Envelope) {
	w.mu.Lock()
	hs := make([]Handler, len(w.handlers[env.Event]))
	copy(hs, w.handlers[env.Event])
	w.mu.Unlock()
	for _, h := range hs {
		h(env.Payload)
	}
}

func (w *WS) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		w.shutdown()
		_ = w.conn.Close()
	}()
	for {
		select {
		case env := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteJSON(env); err != nil {
				w.log.Warnw("write frame", "err", err)
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-w.done:
			_ = w.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
