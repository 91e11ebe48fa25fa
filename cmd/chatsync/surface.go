package main

import (
	"fmt"
	"io"

	"github.com/fathima-sithara/chatsync/internal/store"
)

// termSurface renders the conversation as lines on a terminal. A terminal
// log has no scrollback position of its own, so it always reads as sitting
// at the bottom and scrolling is a no-op.
type termSurface struct {
	w io.Writer
}

func newTermSurface(w io.Writer) *termSurface {
	return &termSurface{w: w}
}

func (s *termSurface) line(m store.Message) string {
	body := m.Content
	if m.FilePath != "" {
		body = fmt.Sprintf("[%s] %s", m.ContentType, m.FilePath)
	}
	suffix := ""
	if m.Pending {
		suffix = " (sending...)"
	}
	if m.EditedAt != nil {
		suffix += " (edited)"
	}
	if m.ReadAt != nil {
		suffix += " (read)"
	}
	return fmt.Sprintf("[%s] %s: %s%s", m.Timestamp.Format("15:04:05"), m.SenderName, body, suffix)
}

func (s *termSurface) Append(m store.Message) {
	fmt.Fprintln(s.w, s.line(m))
}

func (s *termSurface) Update(m store.Message) {
	fmt.Fprintf(s.w, "%s\n", s.line(m))
}

func (s *termSurface) Remove(m store.Message) {
	fmt.Fprintf(s.w, "* message %d disappeared\n", m.ID)
}

func (s *termSurface) SetRead(m store.Message) {
	fmt.Fprintf(s.w, "* message %d read\n", m.ID)
}

func (s *termSurface) Reset() {
	fmt.Fprintln(s.w, "----------------------------------------")
}

func (s *termSurface) DistanceFromBottom() int { return 0 }

func (s *termSurface) ScrollToBottom() {}
