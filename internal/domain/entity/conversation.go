package entity

import "time"

const (
	ConversationTypeAdminApplicant = "ADMIN_APPLICANT"
	ConversationTypeAdminLender    = "ADMIN_LENDER"
)

type Conversation struct {
	ID          string    `json:"id" firestore:"id"`
	Type        string    `json:"type" firestore:"type"` // "ADMIN_APPLICANT", "ADMIN_LENDER"
	CreatedByID string    `json:"created_by_id" firestore:"createdById"`
	// ParticipantIDs holds the ids of ACTIVE participants only, so
	// membership listings stay a single array-contains query.
	ParticipantIDs []string  `json:"participant_ids" firestore:"participantIds"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time `json:"updated_at" firestore:"updatedAt"` // bumped on every message
}

// ConversationParticipant is the membership record binding a user to a
// conversation. Records are deactivated, never deleted.
type ConversationParticipant struct {
	UserID         string    `json:"user_id" firestore:"userId"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	IsActive       bool      `json:"is_active" firestore:"isActive"`
	JoinedAt       time.Time `json:"joined_at" firestore:"joinedAt"`
}
