package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/domain/repository"
	"brokerdesk/pkg/errors"
	"brokerdesk/pkg/logger"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversationRef(id string) *firestore.DocumentRef {
	return r.client.Collection("conversations").Doc(id)
}

// Create writes the conversation and all initial participant records in
// one transaction so a half-created conversation is never visible.
func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation, participantIDs []string) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	convRef := r.conversationRef(conv.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(convRef, conv); err != nil {
			return err
		}
		for _, userID := range participantIDs {
			participant := &entity.ConversationParticipant{
				UserID:         userID,
				ConversationID: conv.ID,
				IsActive:       true,
				JoinedAt:       now,
			}
			if err := tx.Set(convRef.Collection("participants").Doc(userID), participant); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversationRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conv, nil
}

func (r *firestoreConversationRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.client.Collection("conversations").
		Where("participantIds", "array-contains", userID).
		OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("firestore: failed to fetch conversations for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch conversations", err)
	}

	total := int64(len(allDocs))

	// Pagination applied in memory; conversation lists per user are small.
	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var conversations []*entity.Conversation
	for i := start; i < end; i++ {
		var conv entity.Conversation
		if err := allDocs[i].DataTo(&conv); err != nil {
			logger.Warn("firestore: skipping malformed conversation doc %s: %v", allDocs[i].Ref.ID, err)
			continue
		}
		conversations = append(conversations, &conv)
	}

	return conversations, total, nil
}

func (r *firestoreConversationRepository) GetParticipant(ctx context.Context, conversationID, userID string) (*entity.ConversationParticipant, error) {
	doc, err := r.conversationRef(conversationID).Collection("participants").Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Participant", err)
		}
		return nil, errors.Internal("Failed to get participant", err)
	}

	var participant entity.ConversationParticipant
	if err := doc.DataTo(&participant); err != nil {
		return nil, errors.Internal("Failed to parse participant data", err)
	}

	return &participant, nil
}

func (r *firestoreConversationRepository) ListParticipants(ctx context.Context, conversationID string) ([]*entity.ConversationParticipant, error) {
	iter := r.conversationRef(conversationID).Collection("participants").Documents(ctx)

	var participants []*entity.ConversationParticipant
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list participants", err)
		}

		var participant entity.ConversationParticipant
		if err := doc.DataTo(&participant); err != nil {
			continue
		}
		participants = append(participants, &participant)
	}

	return participants, nil
}

// DeactivateParticipant flips the membership flag and drops the user from
// the parent's active-participant array. The record itself is kept.
func (r *firestoreConversationRepository) DeactivateParticipant(ctx context.Context, conversationID, userID string) error {
	convRef := r.conversationRef(conversationID)
	participantRef := convRef.Collection("participants").Doc(userID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		convDoc, err := tx.Get(convRef)
		if err != nil {
			return err
		}
		if _, err := tx.Get(participantRef); err != nil {
			return err
		}

		var conv entity.Conversation
		if err := convDoc.DataTo(&conv); err != nil {
			return err
		}

		remaining := make([]string, 0, len(conv.ParticipantIDs))
		for _, id := range conv.ParticipantIDs {
			if id != userID {
				remaining = append(remaining, id)
			}
		}

		if err := tx.Update(participantRef, []firestore.Update{{Path: "isActive", Value: false}}); err != nil {
			return err
		}
		return tx.Update(convRef, []firestore.Update{{Path: "participantIds", Value: remaining}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Participant", err)
		}
		return errors.Internal("Failed to deactivate participant", err)
	}

	return nil
}

// CreateMessage persists the message, the sender's self-read record and
// the conversation activity bump as a single transaction: on any failure
// none of the three writes become visible.
func (r *firestoreConversationRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	now := time.Now()
	message.CreatedAt = now

	convRef := r.conversationRef(message.ConversationID)
	msgRef := convRef.Collection("messages").Doc(message.ID)
	readRef := msgRef.Collection("reads").Doc(message.SenderID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(convRef); err != nil {
			return err
		}

		if err := tx.Set(msgRef, message); err != nil {
			return err
		}
		selfRead := &entity.MessageRead{
			MessageID:      message.ID,
			ConversationID: message.ConversationID,
			UserID:         message.SenderID,
			ReadAt:         now,
		}
		if err := tx.Set(readRef, selfRead); err != nil {
			return err
		}
		return tx.Update(convRef, []firestore.Update{{Path: "updatedAt", Value: now}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		logger.Error("firestore: message transaction failed for conversation %s: %v", message.ConversationID, err)
		return errors.Internal("Failed to save message", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.conversationRef(conversationID).Collection("messages").OrderBy("createdAt", firestore.Asc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("firestore: failed to fetch messages for conversation %s: %v", conversationID, err)
		return nil, 0, errors.Internal("Failed to fetch messages", err)
	}

	total := int64(len(allDocs))

	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var messages []*entity.Message
	for i := start; i < end; i++ {
		var message entity.Message
		if err := allDocs[i].DataTo(&message); err != nil {
			logger.Warn("firestore: skipping malformed message doc %s: %v", allDocs[i].Ref.ID, err)
			continue
		}
		messages = append(messages, &message)
	}

	return messages, total, nil
}

// GetLatestMessage returns nil without error for an empty conversation.
func (r *firestoreConversationRepository) GetLatestMessage(ctx context.Context, conversationID string) (*entity.Message, error) {
	iter := r.conversationRef(conversationID).Collection("messages").
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("Failed to get latest message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}

	return &message, nil
}

// CreateReads inserts read records with insert-if-absent semantics: the
// document id is the reader's user id, so an existing record makes the
// write an AlreadyExists no-op. Ids of messages missing from the
// conversation are skipped, never an error.
func (r *firestoreConversationRepository) CreateReads(ctx context.Context, conversationID, userID string, messageIDs []string) (int, error) {
	now := time.Now()
	created := 0

	for _, messageID := range messageIDs {
		msgRef := r.conversationRef(conversationID).Collection("messages").Doc(messageID)

		if _, err := msgRef.Get(ctx); err != nil {
			if status.Code(err) == codes.NotFound {
				logger.Debug("firestore: skipping read for unknown message %s in conversation %s", messageID, conversationID)
				continue
			}
			return created, errors.Internal("Failed to check message", err)
		}

		read := &entity.MessageRead{
			MessageID:      messageID,
			ConversationID: conversationID,
			UserID:         userID,
			ReadAt:         now,
		}
		if _, err := msgRef.Collection("reads").Doc(userID).Create(ctx, read); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				continue
			}
			return created, errors.Internal("Failed to create read record", err)
		}
		created++
	}

	return created, nil
}

func (r *firestoreConversationRepository) ListReadMessageIDs(ctx context.Context, conversationID, userID string) (map[string]entity.MessageRead, error) {
	docs, err := r.client.CollectionGroup("reads").
		Where("conversationId", "==", conversationID).
		Where("userId", "==", userID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to fetch read records", err)
	}

	reads := make(map[string]entity.MessageRead, len(docs))
	for _, doc := range docs {
		var read entity.MessageRead
		if err := doc.DataTo(&read); err != nil {
			continue
		}
		reads[read.MessageID] = read
	}

	return reads, nil
}
