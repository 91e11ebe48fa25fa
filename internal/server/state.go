package server

import (
	"sort"
	"sync"
	"time"
)

// messageRecord is the relay's copy of a delivered message, kept so the
// edit, read and disappear-timer endpoints can validate and re-broadcast.
type messageRecord struct {
	ID             int64
	Room           string
	SenderID       int
	SenderUsername string
	Content        string
	ContentType    string
	FilePath       string
	Timestamp      time.Time
	Edited         bool
	DisappearTimer int
}

// State is the relay's in-memory store: delivered messages plus the saved
// assistant conversations behind the history endpoints.
type State struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*messageRecord
	chats    map[string][]chatTurn
}

type chatTurn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

func NewState() *State {
	return &State{
		messages: make(map[int64]*messageRecord),
		chats:    make(map[string][]chatTurn),
	}
}

func (s *State) addMessage(rec *messageRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.messages[rec.ID] = rec
	return rec.ID
}

func (s *State) message(id int64) (*messageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

func (s *State) editMessage(id int64, content string) (*messageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	rec.Content = content
	rec.Edited = true
	cp := *rec
	return &cp, true
}

func (s *State) setDisappearTimer(id int64, seconds int) (*messageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	rec.DisappearTimer = seconds
	cp := *rec
	return &cp, true
}

func (s *State) removeMessage(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
}

func (s *State) appendTurn(chatName string, t chatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatName] = append(s.chats[chatName], t)
}

func (s *State) turns(chatName string) []chatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatTurn, len(s.chats[chatName]))
	copy(out, s.chats[chatName])
	return out
}

func (s *State) chatNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.chats))
	for name := range s.chats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *State) startChat(chatName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatName]; !ok {
		s.chats[chatName] = nil
	}
}

func (s *State) deleteChats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[string][]chatTurn)
}
