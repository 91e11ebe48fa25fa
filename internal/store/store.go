// Package store keeps the per-room message log that the renderer reads from.
// It is the single source of truth for message state: the transport's inbound
// handlers and the composer's optimistic inserts are the only writers.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/chatsync/internal/room"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

type Message struct {
	ID             int64 `json:"id"` // server-assigned; 0 while pending
	LocalToken     string
	RoomID         room.ID
	SenderID       int
	SenderName     string
	ContentType    ContentType
	Content        string
	FilePath       string
	Timestamp      time.Time
	EditedAt       *time.Time
	ReadAt         *time.Time
	DisappearAfter int // seconds, 0 means never
	Pending        bool

	arrival uint64
}

type ChangeKind int

const (
	ChangeInserted ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
	ChangeRead
)

type Change struct {
	Kind    ChangeKind
	Room    room.ID
	Message Message
}

type Listener func(Change)

// Store is an append-mostly log per room. Iteration order is non-decreasing
// timestamp; arrival order breaks ties. Rooms initialize lazily on first
// mutation.
type Store struct {
	mu        sync.Mutex
	rooms     map[room.ID][]*Message
	byID      map[room.ID]map[int64]*Message
	byToken   map[room.ID]map[string]*Message
	cap       int
	arrival   uint64
	listeners []Listener
}

func New(roomCap int) *Store {
	return &Store{
		rooms:   make(map[room.ID][]*Message),
		byID:    make(map[room.ID]map[int64]*Message),
		byToken: make(map[room.ID]map[string]*Message),
		cap:     roomCap,
	}
}

// Subscribe registers a change listener. Listeners are invoked synchronously
// within the mutating call so that mutation and render happen in one task.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) notify(changes []Change) {
	for _, c := range changes {
		for _, l := range s.listeners {
			l(c)
		}
	}
}

func (s *Store) ensureRoom(r room.ID) {
	if _, ok := s.rooms[r]; !ok {
		s.rooms[r] = nil
		s.byID[r] = make(map[int64]*Message)
		s.byToken[r] = make(map[string]*Message)
	}
}

// Insert adds a message at its sorted position. Messages with a server id
// are deduplicated by id; a duplicate insert is a no-op. Pending messages
// (no id) are tracked by their LocalToken until reconciled.
func (s *Store) Insert(m Message) bool {
	s.mu.Lock()
	s.ensureRoom(m.RoomID)
	if m.ID != 0 {
		if _, dup := s.byID[m.RoomID][m.ID]; dup {
			s.mu.Unlock()
			return false
		}
	}
	s.arrival++
	m.arrival = s.arrival
	msg := &m
	s.insertSorted(msg)
	if m.ID != 0 {
		s.byID[m.RoomID][m.ID] = msg
	}
	if m.LocalToken != "" {
		s.byToken[m.RoomID][m.LocalToken] = msg
	}
	s.trim(m.RoomID)
	out := msg.clone()
	s.mu.Unlock()
	s.notify([]Change{{Kind: ChangeInserted, Room: m.RoomID, Message: out}})
	return true
}

func (s *Store) insertSorted(m *Message) {
	msgs := s.rooms[m.RoomID]
	// find the first entry with a strictly later timestamp; equal timestamps
	// keep arrival order
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp.After(m.Timestamp)
	})
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	s.rooms[m.RoomID] = msgs
}

func (s *Store) trim(r room.ID) {
	if s.cap <= 0 {
		return
	}
	msgs := s.rooms[r]
	if len(msgs) <= s.cap {
		return
	}
	drop := msgs[:len(msgs)-s.cap]
	for _, m := range drop {
		if m.ID != 0 {
			delete(s.byID[r], m.ID)
		}
		if m.LocalToken != "" {
			delete(s.byToken[r], m.LocalToken)
		}
	}
	s.rooms[r] = msgs[len(msgs)-s.cap:]
}

// Reconcile replaces a pending local entry with its server echo in place,
// preserving its position in the log. Returns false when no pending entry
// matches the token; the caller should Insert instead.
func (s *Store) Reconcile(r room.ID, localToken string, server Message) bool {
	s.mu.Lock()
	s.ensureRoom(r)
	local, ok := s.byToken[r][localToken]
	if !ok || !local.Pending {
		s.mu.Unlock()
		return false
	}
	if server.ID != 0 {
		if _, dup := s.byID[r][server.ID]; dup {
			// echo already applied through another path; drop the pending entry
			s.mu.Unlock()
			s.Expire(r, 0, localToken)
			return true
		}
	}
	delete(s.byToken[r], localToken)
	keepArrival := local.arrival
	*local = server
	local.RoomID = r
	local.LocalToken = ""
	local.Pending = false
	local.arrival = keepArrival
	if local.ID != 0 {
		s.byID[r][local.ID] = local
	}
	out := local.clone()
	s.mu.Unlock()
	s.notify([]Change{{Kind: ChangeUpdated, Room: r, Message: out}})
	return true
}

// ReconcileLoose matches a pending entry by sender and content when no
// correlation token survived the round trip. Best effort only.
func (s *Store) ReconcileLoose(r room.ID, server Message) bool {
	s.mu.Lock()
	var token string
	for t, m := range s.byToken[r] {
		if m.Pending && m.SenderID == server.SenderID && m.Content == server.Content {
			token = t
			break
		}
	}
	s.mu.Unlock()
	if token == "" {
		return false
	}
	return s.Reconcile(r, token, server)
}

// MarkEdited applies an edit. An edit for an id the store has never seen is
// a no-op; events racing ahead of their insert are simply lost, matching the
// behaviour of the front ends this replaces.
func (s *Store) MarkEdited(r room.ID, id int64, content string, editedAt time.Time) bool {
	s.mu.Lock()
	m, ok := s.byID[r][id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	m.Content = content
	m.EditedAt = &editedAt
	out := m.clone()
	s.mu.Unlock()
	s.notify([]Change{{Kind: ChangeUpdated, Room: r, Message: out}})
	return true
}

// MarkRead records the read receipt. No-op for unknown ids.
func (s *Store) MarkRead(r room.ID, id int64, readAt time.Time) bool {
	s.mu.Lock()
	m, ok := s.byID[r][id]
	if !ok || m.ReadAt != nil {
		s.mu.Unlock()
		return false
	}
	m.ReadAt = &readAt
	out := m.clone()
	s.mu.Unlock()
	s.notify([]Change{{Kind: ChangeRead, Room: r, Message: out}})
	return true
}

// SetDisappear records the TTL on a message. The session arms the timer.
func (s *Store) SetDisappear(r room.ID, id int64, seconds int) bool {
	s.mu.Lock()
	m, ok := s.byID[r][id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	m.DisappearAfter = seconds
	out := m.clone()
	s.mu.Unlock()
	s.notify([]Change{{Kind: ChangeUpdated, Room: r, Message: out}})
	return true
}

// Expire removes a message entirely. Idempotent: expiring an absent id (or
// token) is a no-op. Either id or localToken identifies the entry.
func (s *Store) Expire(r room.ID, id int64, localToken string) bool {
	s.mu.Lock()
	msgs := s.rooms[r]
	idx := -1
	for i, m := range msgs {
		if (id != 0 && m.ID == id) || (localToken != "" && m.LocalToken == localToken) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	m := msgs[idx]
	s.rooms[r] = append(msgs[:idx], msgs[idx+1:]...)
	if m.ID != 0 {
		delete(s.byID[r], m.ID)
	}
	if m.LocalToken != "" {
		delete(s.byToken[r], m.LocalToken)
	}
	out := m.clone()
	s.mu.Unlock()
	s.notify([]Change{{Kind: ChangeRemoved, Room: r, Message: out}})
	return true
}

// Messages returns a snapshot of the room's log in display order.
func (s *Store) Messages(r room.ID) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.rooms[r]
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.clone())
	}
	return out
}

func (s *Store) Len(r room.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[r])
}

// EvictRoom drops all state for a room. Used on room switch; the store is
// scoped to the active conversation.
func (s *Store) EvictRoom(r room.ID) {
	s.mu.Lock()
	delete(s.rooms, r)
	delete(s.byID, r)
	delete(s.byToken, r)
	s.mu.Unlock()
}

func (m *Message) clone() Message {
	c := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return c
}
