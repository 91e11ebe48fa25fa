package transport

// Wire payloads. Field names follow the server's JSON keys.

type JoinPayload struct {
	Room string `json:"room"`
}

type SendMessagePayload struct {
	ReceiverID     int    `json:"receiver_id,omitempty"`
	GroupID        int    `json:"group_id,omitempty"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
	FilePath       string `json:"file_path,omitempty"`
	DisappearTimer int    `json:"disappear_timer,omitempty"`
	LocalToken     string `json:"local_token,omitempty"`
}

type ReceiveMessagePayload struct {
	MessageID      int64  `json:"message_id"`
	SenderID       int    `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	GroupID        int    `json:"group_id,omitempty"`
	Room           string `json:"room"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
	FilePath       string `json:"file_path,omitempty"`
	Timestamp      string `json:"timestamp"`
	Edited         bool   `json:"edited,omitempty"`
	DisappearTimer int    `json:"disappear_timer,omitempty"`
	LocalToken     string `json:"local_token,omitempty"`
}

type TypingPayload struct {
	Room string `json:"room"`
}

type TypingEvent struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
}

type StopTypingEvent struct {
	UserID int    `json:"user_id"`
	Room   string `json:"room,omitempty"`
}

type MessageReadPayload struct {
	MessageID int64  `json:"message_id"`
	Room      string `json:"room,omitempty"`
}

type MessageEditedEvent struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
	Edited    bool   `json:"edited"`
	Room      string `json:"room,omitempty"`
}

type DisappearTimerEvent struct {
	MessageID int64  `json:"message_id"`
	Timer     int    `json:"timer"`
	Room      string `json:"room,omitempty"`
}

type UserStatusEvent struct {
	UserID   int    `json:"user_id"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen,omitempty"`
}
