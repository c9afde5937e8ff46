package usecase

import (
	"context"
	"strings"
	"time"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/domain/repository"
	"brokerdesk/internal/infrastructure/metrics"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/pkg/errors"
	"brokerdesk/pkg/logger"
)

// maxMessageLen caps message content after trimming. The original
// protocol carries no hard bound; this one exists so a single send can
// never approach the transport frame limit.
const maxMessageLen = 4000

type ConversationUseCase struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	limiter  *ratelimit.RateLimiter
}

func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	limiter *ratelimit.RateLimiter,
) *ConversationUseCase {
	return &ConversationUseCase{
		convRepo: convRepo,
		userRepo: userRepo,
		limiter:  limiter,
	}
}

type CreateConversationInput struct {
	ParticipantIDs []string
	Type           string
}

type ParticipantResponse struct {
	UserID   string              `json:"user_id"`
	IsActive bool                `json:"is_active"`
	JoinedAt time.Time           `json:"joined_at"`
	User     *entity.UserSummary `json:"user,omitempty"`
}

type ConversationResponse struct {
	*entity.Conversation
	Participants []*ParticipantResponse `json:"participants"`
	LastMessage  *MessageResponse       `json:"last_message,omitempty"`
}

type MessageResponse struct {
	*entity.Message
	Sender *entity.UserSummary `json:"sender,omitempty"`
	ReadAt *time.Time          `json:"read_at,omitempty"`
}

// GetProfile loads the caller's user record; the socket token endpoint
// needs the stored role, not just the session uid.
func (uc *ConversationUseCase) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	return uc.userRepo.GetByID(ctx, userID)
}

// EnsureUser materializes the portal user record behind a verified
// session. First login creates the record as an applicant; admin and
// lender roles are provisioned out of band. Later logins refresh the
// profile fields when the identity provider reports new ones.
func (uc *ConversationUseCase) EnsureUser(ctx context.Context, id, name, email string) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, id)
	if err == nil {
		changed := false
		if name != "" && user.Name != name {
			user.Name = name
			changed = true
		}
		if email != "" && user.Email != email {
			user.Email = email
			changed = true
		}
		if changed {
			if err := uc.userRepo.Update(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	user = &entity.User{
		ID:    id,
		Name:  name,
		Email: email,
		Role:  entity.RoleApplicant,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		logger.Error("EnsureUser: failed to create user %s: %v", id, err)
		return nil, err
	}

	logger.Info("EnsureUser: created user %s on first login", id)
	return user, nil
}

// CreateConversation creates a conversation after enforcing the role-pair
// allow-list: admins may start with applicants/lenders, applicants only
// with admins, lenders may not initiate.
func (uc *ConversationUseCase) CreateConversation(ctx context.Context, userID string, input CreateConversationInput) (*ConversationResponse, error) {
	if allowed, wait := uc.limiter.Allow(userID, ratelimit.ActionCreateConversation); !allowed {
		logger.Warn("CreateConversation rate limited: user %s must wait %v", userID, wait)
		return nil, errors.TooManyRequests("Too many new conversations. Please wait before starting another")
	}

	uniqueIDs := dedupe(input.ParticipantIDs)
	if len(uniqueIDs) == 0 {
		return nil, errors.BadRequest("Participant ids are required", nil)
	}

	creator, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	participants, err := uc.userRepo.GetByIDs(ctx, uniqueIDs)
	if err != nil {
		return nil, err
	}
	if len(participants) != len(uniqueIDs) {
		return nil, errors.BadRequest("One or more participant ids are invalid", nil)
	}

	if err := checkRolePairing(creator.Role, participants); err != nil {
		return nil, err
	}

	convType := input.Type
	if convType == "" {
		convType = entity.ConversationTypeAdminApplicant
	}

	allIDs := dedupe(append([]string{userID}, uniqueIDs...))
	conv := &entity.Conversation{
		Type:           convType,
		CreatedByID:    userID,
		ParticipantIDs: allIDs,
	}

	if err := uc.convRepo.Create(ctx, conv, allIDs); err != nil {
		logger.Error("CreateConversation: persistence failed for user %s: %v", userID, err)
		return nil, err
	}

	users := append([]*entity.User{creator}, participants...)
	summaries := make(map[string]*entity.UserSummary, len(users))
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}

	resp := &ConversationResponse{Conversation: conv}
	for _, id := range allIDs {
		resp.Participants = append(resp.Participants, &ParticipantResponse{
			UserID:   id,
			IsActive: true,
			JoinedAt: conv.CreatedAt,
			User:     summaries[id],
		})
	}

	return resp, nil
}

func checkRolePairing(creatorRole string, participants []*entity.User) error {
	switch creatorRole {
	case entity.RoleAdmin:
		for _, p := range participants {
			if p.Role != entity.RoleApplicant && p.Role != entity.RoleLender {
				return errors.RoleNotAllowed("Admins can only start conversations with applicants or lenders")
			}
		}
	case entity.RoleApplicant:
		for _, p := range participants {
			if p.Role != entity.RoleAdmin {
				return errors.RoleNotAllowed("Applicants can only start conversations with admins")
			}
		}
	case entity.RoleLender:
		return errors.RoleNotAllowed("Lenders cannot start conversations")
	default:
		return errors.RoleNotAllowed("Unknown role")
	}
	return nil
}

// ListConversations returns the caller's conversations ordered by last
// activity, each with its active participants and most recent message.
func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*ConversationResponse, int64, error) {
	conversations, total, err := uc.convRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		resp := &ConversationResponse{Conversation: conv}

		participants, err := uc.convRepo.ListParticipants(ctx, conv.ID)
		if err != nil {
			return nil, 0, err
		}

		var activeIDs []string
		for _, p := range participants {
			if p.IsActive {
				activeIDs = append(activeIDs, p.UserID)
			}
		}
		summaries, err := uc.userSummaries(ctx, activeIDs)
		if err != nil {
			return nil, 0, err
		}
		for _, p := range participants {
			if !p.IsActive {
				continue
			}
			resp.Participants = append(resp.Participants, &ParticipantResponse{
				UserID:   p.UserID,
				IsActive: true,
				JoinedAt: p.JoinedAt,
				User:     summaries[p.UserID],
			})
		}

		last, err := uc.convRepo.GetLatestMessage(ctx, conv.ID)
		if err != nil {
			return nil, 0, err
		}
		if last != nil {
			resp.LastMessage = &MessageResponse{
				Message: last,
				Sender:  summaries[last.SenderID],
			}
		}

		responses = append(responses, resp)
	}

	return responses, total, nil
}

// ListMessages returns a conversation's messages in commit order with the
// caller's read timestamps joined in. Participant-gated.
func (uc *ConversationUseCase) ListMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*MessageResponse, int64, error) {
	if err := uc.requireActiveParticipant(ctx, conversationID, userID); err != nil {
		return nil, 0, err
	}

	messages, total, err := uc.convRepo.GetMessagesByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	reads, err := uc.convRepo.ListReadMessageIDs(ctx, conversationID, userID)
	if err != nil {
		return nil, 0, err
	}

	var senderIDs []string
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}
	summaries, err := uc.userSummaries(ctx, dedupe(senderIDs))
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp := &MessageResponse{
			Message: m,
			Sender:  summaries[m.SenderID],
		}
		if read, ok := reads[m.ID]; ok {
			readAt := read.ReadAt
			resp.ReadAt = &readAt
		}
		responses = append(responses, resp)
	}

	return responses, total, nil
}

// SendMessage is the request/response variant of message send. It shares
// validation, authorization and the atomic persistence unit with the
// socket path but performs no fan-out; it exists for page-load flows.
func (uc *ConversationUseCase) SendMessage(ctx context.Context, userID, conversationID, content string) (*MessageResponse, error) {
	msg, sender, err := uc.AppendMessage(ctx, conversationID, userID, content)
	if err != nil {
		return nil, err
	}

	return &MessageResponse{
		Message: msg,
		Sender:  sender,
	}, nil
}

// MarkAllRead creates a read record for every message in the conversation
// sent by someone else and not yet read by the caller. Returns how many
// records were created.
func (uc *ConversationUseCase) MarkAllRead(ctx context.Context, userID, conversationID string) (int, error) {
	if err := uc.requireActiveParticipant(ctx, conversationID, userID); err != nil {
		return 0, err
	}

	messages, _, err := uc.convRepo.GetMessagesByConversation(ctx, conversationID, 0, 0)
	if err != nil {
		return 0, err
	}

	reads, err := uc.convRepo.ListReadMessageIDs(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}

	var unreadIDs []string
	for _, m := range messages {
		if m.SenderID == userID {
			continue
		}
		if _, ok := reads[m.ID]; ok {
			continue
		}
		unreadIDs = append(unreadIDs, m.ID)
	}

	if len(unreadIDs) == 0 {
		return 0, nil
	}

	return uc.convRepo.CreateReads(ctx, conversationID, userID, unreadIDs)
}

// ListContacts returns the users the caller may start a conversation
// with, per the same role allow-list the create path enforces. Lenders
// get an empty list: they cannot initiate.
func (uc *ConversationUseCase) ListContacts(ctx context.Context, userID string) ([]*entity.UserSummary, error) {
	caller, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var roles []string
	switch caller.Role {
	case entity.RoleAdmin:
		roles = []string{entity.RoleApplicant, entity.RoleLender}
	case entity.RoleApplicant:
		roles = []string{entity.RoleAdmin}
	default:
		return []*entity.UserSummary{}, nil
	}

	users, err := uc.userRepo.ListByRoles(ctx, roles)
	if err != nil {
		return nil, err
	}

	summaries := make([]*entity.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}

	return summaries, nil
}

// RemoveParticipant deactivates a membership record; the record and the
// user's message history survive.
func (uc *ConversationUseCase) RemoveParticipant(ctx context.Context, conversationID, targetUserID string) error {
	if _, err := uc.convRepo.GetParticipant(ctx, conversationID, targetUserID); err != nil {
		return err
	}
	return uc.convRepo.DeactivateParticipant(ctx, conversationID, targetUserID)
}

// ActiveParticipant implements the realtime layer's membership check.
func (uc *ConversationUseCase) ActiveParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	participant, err := uc.convRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return participant.IsActive, nil
}

// AppendMessage validates and atomically persists a message for both the
// socket and REST paths: the message row, the sender's self-read record
// and the conversation activity bump land together or not at all.
func (uc *ConversationUseCase) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, *entity.UserSummary, error) {
	if allowed, wait := uc.limiter.Allow(senderID, ratelimit.ActionSendMessage); !allowed {
		logger.Warn("AppendMessage rate limited: user %s must wait %v", senderID, wait)
		return nil, nil, errors.TooManyRequests("You are sending messages too quickly. Please slow down")
	}

	active, err := uc.ActiveParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, nil, err
	}
	if !active {
		return nil, nil, errors.Forbidden("Not a participant of this conversation", nil)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, errors.BadRequest("Message content is required", nil)
	}
	if len(content) > maxMessageLen {
		return nil, nil, errors.BadRequest("Message content is too long", nil)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		logger.Error("AppendMessage: sender %s lookup failed: %v", senderID, err)
		return nil, nil, err
	}

	message := &entity.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}

	if err := uc.convRepo.CreateMessage(ctx, message); err != nil {
		logger.Error("AppendMessage: persistence failed for conversation %s: %v", conversationID, err)
		return nil, nil, err
	}

	metrics.MessagesPersisted.Inc()

	return message, sender.Summary(), nil
}

// RecordReads persists explicit read receipts; duplicate ids in the same
// call and already-read messages are no-ops.
func (uc *ConversationUseCase) RecordReads(ctx context.Context, conversationID, userID string, messageIDs []string) error {
	active, err := uc.ActiveParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !active {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}

	uniqueIDs := dedupe(messageIDs)
	if len(uniqueIDs) == 0 {
		return errors.BadRequest("Message ids are required", nil)
	}

	_, err = uc.convRepo.CreateReads(ctx, conversationID, userID, uniqueIDs)
	return err
}

func (uc *ConversationUseCase) requireActiveParticipant(ctx context.Context, conversationID, userID string) error {
	active, err := uc.ActiveParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !active {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}
	return nil
}

func (uc *ConversationUseCase) userSummaries(ctx context.Context, ids []string) (map[string]*entity.UserSummary, error) {
	if len(ids) == 0 {
		return map[string]*entity.UserSummary{}, nil
	}
	users, err := uc.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]*entity.UserSummary, len(users))
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}
	return summaries, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
