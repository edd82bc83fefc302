package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	TypeSyncCompleted        MessageType = "sync.completed"
	TypeSyncFailed           MessageType = "sync.failed"
	TypeDigestGenerated      MessageType = "digest.generated"
	TypeDigestBatchCompleted MessageType = "digest.batch_completed"
)

// Message is the envelope of every pushed event.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload is the payload for sync.completed events.
type SyncPayload struct {
	UserID       string     `json:"user_id"`
	UserEmail    string     `json:"user_email"`
	Mode         string     `json:"mode"`
	Outcome      string     `json:"outcome"`
	Processed    int        `json:"processed"`
	Skipped      int        `json:"skipped"`
	PagesFetched int        `json:"pages_fetched"`
	Checkpoint   *time.Time `json:"checkpoint,omitempty"`
}

// SyncErrorPayload is the payload for sync.failed events.
type SyncErrorPayload struct {
	UserID  string `json:"user_id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DigestPayload is the payload for digest.generated events.
type DigestPayload struct {
	UserID     string `json:"user_id"`
	DigestID   string `json:"digest_id"`
	DigestDate string `json:"digest_date"`
	Meetings   int    `json:"meetings"`
}

// BatchPayload is the payload for digest.batch_completed events.
type BatchPayload struct {
	Users     int `json:"users"`
	Succeeded int `json:"succeeded"`
	Empty     int `json:"empty"`
	Failed    int `json:"failed"`
}
