// Package transport wraps the realtime channel behind a minimal adapter:
// connect once, join rooms, emit events, receive events. It guarantees no
// ordering stronger than what the underlying channel delivers; the message
// store is the correctness boundary for dedupe and ordering.
package transport

import "encoding/json"

// Event names on the wire.
const (
	EventJoin              = "join"
	EventLeave             = "leave"
	EventSendMessage       = "send_message"
	EventReceiveMessage    = "receive_message"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
	EventMessageRead       = "message_read"
	EventMessageEdited     = "message_edited"
	EventDisappearTimerSet = "disappear_timer_set"
	EventUserStatus        = "user_status"
)

// TimeLayout is the timestamp format used on the wire.
const TimeLayout = "2006-01-02 15:04:05"

// Envelope frames every event on the channel.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type Handler func(payload json.RawMessage)

// Transport is the capability set the composer and session depend on.
// Implementations must make JoinRoom idempotent and must not retry failed
// sends.
type Transport interface {
	JoinRoom(room string) error
	LeaveRoom(room string) error
	Send(event string, payload any) error
	On(event string, h Handler)
	Connected() bool
	Close() error
}
