// Package composer turns user input into message submissions and bounds
// typing-indicator traffic with a debounce timer.
package composer

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/chatsync/internal/chaterr"
	"github.com/fathima-sithara/chatsync/internal/room"
	"github.com/fathima-sithara/chatsync/internal/store"
	"github.com/fathima-sithara/chatsync/internal/transport"
)

// Channel is the slice of the transport the composer needs.
type Channel interface {
	Send(event string, payload any) error
	Connected() bool
}

// Target identifies where submissions go.
type Target struct {
	Room       room.ID
	ReceiverID int
	GroupID    int
}

type Composer struct {
	ch         Channel
	st         *store.Store
	selfID     int
	selfName   string
	target     Target
	debounce   time.Duration
	optimistic bool

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
}

func New(ch Channel, st *store.Store, selfID int, selfName string, target Target, debounce time.Duration, optimistic bool) *Composer {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Composer{
		ch:         ch,
		st:         st,
		selfID:     selfID,
		selfName:   selfName,
		target:     target,
		debounce:   debounce,
		optimistic: optimistic,
	}
}

// Retarget points the composer at a new conversation and drops any live
// typing state without emitting for the old room.
func (c *Composer) Retarget(target Target) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.typing = false
	c.target = target
	c.mu.Unlock()
}

// Submit sends trimmed text. Empty input is a silent no-op.
func (c *Composer) Submit(text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}
	return c.send(content, store.ContentText, "")
}

// SubmitAttachment sends a previously uploaded file reference. The upload
// itself is a separate step; only its returned path arrives here.
func (c *Composer) SubmitAttachment(filePath, mimeType string) error {
	if strings.TrimSpace(filePath) == "" {
		return nil
	}
	return c.send("", ContentTypeForMIME(mimeType), filePath)
}

func (c *Composer) send(content string, ct store.ContentType, filePath string) error {
	if !c.ch.Connected() {
		return chaterr.ErrDisconnected
	}
	token := uuid.NewString()
	err := c.ch.Send(transport.EventSendMessage, transport.SendMessagePayload{
		ReceiverID:  c.target.ReceiverID,
		GroupID:     c.target.GroupID,
		Content:     content,
		ContentType: string(ct),
		FilePath:    filePath,
		LocalToken:  token,
	})
	if err != nil {
		return err
	}
	if c.optimistic {
		c.st.Insert(store.Message{
			LocalToken:  token,
			RoomID:      c.target.Room,
			SenderID:    c.selfID,
			SenderName:  c.selfName,
			ContentType: ct,
			Content:     content,
			FilePath:    filePath,
			Timestamp:   time.Now().UTC(),
			Pending:     true,
		})
	}
	return nil
}

// KeyPressed marks the user as typing. The first keystroke emits a typing
// event; further keystrokes only re-arm the debounce timer, so continuous
// typing costs one typing + one stop_typing pair per idle gap.
func (c *Composer) KeyPressed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.typing {
		if !c.ch.Connected() {
			return
		}
		if err := c.ch.Send(transport.EventTyping, transport.TypingPayload{Room: string(c.target.Room)}); err != nil {
			return
		}
		c.typing = true
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.stopTyping)
}

func (c *Composer) stopTyping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.typing {
		return
	}
	c.typing = false
	c.timer = nil
	_ = c.ch.Send(transport.EventStopTyping, transport.TypingPayload{Room: string(c.target.Room)})
}

// ContentTypeForMIME maps a MIME type onto the wire content type.
func ContentTypeForMIME(mimeType string) store.ContentType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return store.ContentImage
	case strings.HasPrefix(mimeType, "video/"):
		return store.ContentVideo
	default:
		return store.ContentFile
	}
}
