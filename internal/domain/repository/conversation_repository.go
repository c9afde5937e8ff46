package repository

import (
	"context"

	"brokerdesk/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation, participantIDs []string) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error)

	// GetParticipant returns the membership record for the pair, or a
	// NOT_FOUND error if none was ever created.
	GetParticipant(ctx context.Context, conversationID, userID string) (*entity.ConversationParticipant, error)
	ListParticipants(ctx context.Context, conversationID string) ([]*entity.ConversationParticipant, error)
	DeactivateParticipant(ctx context.Context, conversationID, userID string) error

	// CreateMessage persists the message, the sender's self-read record,
	// and the conversation activity-timestamp bump as one atomic unit.
	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)
	GetLatestMessage(ctx context.Context, conversationID string) (*entity.Message, error)

	// CreateReads inserts one read record per message id not already read
	// by the user; existing records are skipped, never an error.
	CreateReads(ctx context.Context, conversationID, userID string, messageIDs []string) (int, error)
	ListReadMessageIDs(ctx context.Context, conversationID, userID string) (map[string]entity.MessageRead, error)
}
