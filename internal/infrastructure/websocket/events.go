package websocket

import (
	"encoding/json"
	"time"

	"brokerdesk/internal/domain/entity"
)

// Client -> server events.
const (
	EventJoinConversation  = "join:conversation"
	EventLeaveConversation = "leave:conversation"
	EventMessageSend       = "message:send"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessageRead       = "message:read"
)

// Server -> client events.
const (
	EventMessageNew = "message:new"
	EventError      = "error"
)

// Envelope frames every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomPayload struct {
	ConversationID string `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	UserName       string `json:"userName"`
}

type readPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// NewMessageEvent is the message:new payload: the persisted message with
// the sender's minimal profile attached.
type NewMessageEvent struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	Content        string              `json:"content"`
	CreatedAt      time.Time           `json:"createdAt"`
	Sender         *entity.UserSummary `json:"sender"`
}

type TypingEvent struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	ConversationID string `json:"conversationId"`
}

type ReadEvent struct {
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func marshalEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
