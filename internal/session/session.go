// Package session holds the per-page controller state that the front ends
// used to keep in module-level globals: identity, the active room, presence,
// and the wiring from inbound transport events into the message store.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/composer"
	"github.com/fathima-sithara/chatsync/internal/render"
	"github.com/fathima-sithara/chatsync/internal/room"
	"github.com/fathima-sithara/chatsync/internal/store"
	"github.com/fathima-sithara/chatsync/internal/transport"
)

// DefaultTypingTTL clears a remote typist that never sent stop_typing.
const DefaultTypingTTL = 5 * time.Second

type Presence struct {
	Status   string
	LastSeen string
}

// Controller is created once per session and torn down on navigation away.
type Controller struct {
	selfID   int
	selfName string

	st  *store.Store
	tr  transport.Transport
	rec *render.Reconciler
	cmp *composer.Composer
	log *zap.SugaredLogger

	typingTTL time.Duration
	tickUnit  time.Duration // disappear-timer unit; seconds outside tests

	mu           sync.Mutex
	active       room.ID
	typists      map[int]string
	typingTimers map[int]*time.Timer
	presence     map[int]Presence
	expiryTimers map[int64]*time.Timer

	// OnTyping, when set, receives the current remote typist names after
	// every typing-state change.
	OnTyping func(names []string)
}

func New(selfID int, selfName string, st *store.Store, tr transport.Transport, rec *render.Reconciler, cmp *composer.Composer, log *zap.SugaredLogger) *Controller {
	return &Controller{
		selfID:       selfID,
		selfName:     selfName,
		st:           st,
		tr:           tr,
		rec:          rec,
		cmp:          cmp,
		log:          log,
		typingTTL:    DefaultTypingTTL,
		tickUnit:     time.Second,
		typists:      make(map[int]string),
		typingTimers: make(map[int]*time.Timer),
		presence:     make(map[int]Presence),
		expiryTimers: make(map[int64]*time.Timer),
	}
}

// Start registers the inbound event handlers. Call once, before joining.
func (c *Controller) Start() {
	c.tr.On(transport.EventReceiveMessage, c.onReceiveMessage)
	c.tr.On(transport.EventMessageEdited, c.onMessageEdited)
	c.tr.On(transport.EventDisappearTimerSet, c.onDisappearTimerSet)
	c.tr.On(transport.EventMessageRead, c.onMessageRead)
	c.tr.On(transport.EventTyping, c.onTyping)
	c.tr.On(transport.EventStopTyping, c.onStopTyping)
	c.tr.On(transport.EventUserStatus, c.onUserStatus)
}

// SwitchRoom leaves and evicts the current room, then joins the new one.
// In-flight responses for the old room are dropped by the active-room guard
// rather than cancelled.
func (c *Controller) SwitchRoom(target composer.Target) error {
	c.mu.Lock()
	old := c.active
	c.active = target.Room
	c.typists = make(map[int]string)
	for _, t := range c.typingTimers {
		t.Stop()
	}
	c.typingTimers = make(map[int]*time.Timer)
	c.mu.Unlock()

	if old != "" && old != target.Room {
		_ = c.tr.LeaveRoom(string(old))
		c.st.EvictRoom(old)
	}
	if err := c.tr.JoinRoom(string(target.Room)); err != nil {
		return err
	}
	c.cmp.Retarget(target)
	c.rec.SetRoom(c.st, target.Room)
	c.notifyTyping()
	return nil
}

// ActiveRoom returns the room the controller currently renders.
func (c *Controller) ActiveRoom() room.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// MarkMessageRead acknowledges receipt of a peer message to the server.
func (c *Controller) MarkMessageRead(messageID int64) error {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	return c.tr.Send(transport.EventMessageRead, transport.MessageReadPayload{
		MessageID: messageID,
		Room:      string(r),
	})
}

// TypingUsers lists remote users currently typing in the active room.
func (c *Controller) TypingUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.typists))
	for _, n := range c.typists {
		names = append(names, n)
	}
	return names
}

// PresenceOf returns the last known status for a user.
func (c *Controller) PresenceOf(userID int) (Presence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.presence[userID]
	return p, ok
}

// Close tears the session down.
func (c *Controller) Close() error {
	c.mu.Lock()
	for _, t := range c.typingTimers {
		t.Stop()
	}
	for _, t := range c.expiryTimers {
		t.Stop()
	}
	c.mu.Unlock()
	return c.tr.Close()
}

func (c *Controller) isActive(r string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r != "" && room.ID(r) == c.active
}

func (c *Controller) onReceiveMessage(raw json.RawMessage) {
	var p transport.ReceiveMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.log.Warnw("bad receive_message payload", "err", err)
		return
	}
	if !c.isActive(p.Room) {
		c.log.Debugw("drop message for inactive room", "room", p.Room)
		return
	}
	ts, err := time.Parse(transport.TimeLayout, p.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	msg := store.Message{
		ID:             p.MessageID,
		RoomID:         room.ID(p.Room),
		SenderID:       p.SenderID,
		SenderName:     p.SenderUsername,
		ContentType:    store.ContentType(p.ContentType),
		Content:        p.Content,
		FilePath:       p.FilePath,
		Timestamp:      ts,
		DisappearAfter: p.DisappearTimer,
	}

	if p.SenderID == c.selfID {
		// our own echo: replace the optimistic entry rather than append
		if p.LocalToken != "" && c.st.Reconcile(msg.RoomID, p.LocalToken, msg) {
			c.armExpiry(msg)
			return
		}
		if c.st.ReconcileLoose(msg.RoomID, msg) {
			c.armExpiry(msg)
			return
		}
	}
	if c.st.Insert(msg) {
		c.armExpiry(msg)
	}
}

func (c *Controller) onMessageEdited(raw json.RawMessage) {
	var p transport.MessageEditedEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if p.Room != "" && !c.isActive(p.Room) {
		return
	}
	// unknown ids are a no-op: an edit racing ahead of its insert is lost
	c.st.MarkEdited(r, p.MessageID, p.Content, time.Now().UTC())
}

func (c *Controller) onDisappearTimerSet(raw json.RawMessage) {
	var p transport.DisappearTimerEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if p.Room != "" && !c.isActive(p.Room) {
		return
	}
	if c.st.SetDisappear(r, p.MessageID, p.Timer) {
		c.armExpiry(store.Message{ID: p.MessageID, RoomID: r, DisappearAfter: p.Timer})
	}
}

func (c *Controller) onMessageRead(raw json.RawMessage) {
	var p transport.MessageReadPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	c.st.MarkRead(r, p.MessageID, time.Now().UTC())
}

func (c *Controller) onTyping(raw json.RawMessage) {
	var p transport.TypingEvent
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == c.selfID {
		return
	}
	c.mu.Lock()
	c.typists[p.UserID] = p.Username
	if t, ok := c.typingTimers[p.UserID]; ok {
		t.Stop()
	}
	uid := p.UserID
	c.typingTimers[uid] = time.AfterFunc(c.typingTTL, func() {
		c.clearTypist(uid)
	})
	c.mu.Unlock()
	c.notifyTyping()
}

func (c *Controller) onStopTyping(raw json.RawMessage) {
	var p transport.StopTypingEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.clearTypist(p.UserID)
}

func (c *Controller) clearTypist(userID int) {
	c.mu.Lock()
	if t, ok := c.typingTimers[userID]; ok {
		t.Stop()
		delete(c.typingTimers, userID)
	}
	_, present := c.typists[userID]
	delete(c.typists, userID)
	c.mu.Unlock()
	if present {
		c.notifyTyping()
	}
}

func (c *Controller) notifyTyping() {
	if c.OnTyping != nil {
		c.OnTyping(c.TypingUsers())
	}
}

func (c *Controller) onUserStatus(raw json.RawMessage) {
	var p transport.UserStatusEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.mu.Lock()
	c.presence[p.UserID] = Presence{Status: p.Status, LastSeen: p.LastSeen}
	c.mu.Unlock()
}

// armExpiry schedules removal for a disappearing message. Expire is
// idempotent, so a timer racing a room switch is harmless.
func (c *Controller) armExpiry(m store.Message) {
	if m.DisappearAfter <= 0 {
		return
	}
	c.mu.Lock()
	if t, ok := c.expiryTimers[m.ID]; ok {
		t.Stop()
	}
	id, r := m.ID, m.RoomID
	c.expiryTimers[id] = time.AfterFunc(time.Duration(m.DisappearAfter)*c.tickUnit, func() {
		c.st.Expire(r, id, "")
		c.mu.Lock()
		delete(c.expiryTimers, id)
		c.mu.Unlock()
	})
	c.mu.Unlock()
}
