package entity

import "time"

// Message is immutable once created; there is no edit or delete path.
type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	Content        string    `json:"content" firestore:"content"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// MessageRead records that a user has seen a message. At most one record
// exists per (message, user) pair; the Firestore document id is the
// reader's user id, which makes duplicate marks structural no-ops.
type MessageRead struct {
	MessageID      string    `json:"message_id" firestore:"messageId"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	UserID         string    `json:"user_id" firestore:"userId"`
	ReadAt         time.Time `json:"read_at" firestore:"readAt"`
}
