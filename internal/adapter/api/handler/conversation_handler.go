package handler

import (
	"github.com/labstack/echo/v4"

	"brokerdesk/internal/usecase"
	"brokerdesk/pkg/response"
	"brokerdesk/pkg/utils"
)

type ConversationHandler struct {
	conversations *usecase.ConversationUseCase
}

func NewConversationHandler(conversations *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
	}
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1"`
	Type           string   `json:"type" validate:"omitempty,oneof=ADMIN_APPLICANT ADMIN_LENDER"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// ListConversations returns the caller's conversations ordered by last
// activity.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	conversations, total, err := h.conversations.ListConversations(c.Request().Context(), userID, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, conversations, total, params.Page, params.PageSize)
}

func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, err := h.conversations.CreateConversation(c.Request().Context(), userID, usecase.CreateConversationInput{
		ParticipantIDs: req.ParticipantIDs,
		Type:           req.Type,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conv)
}

func (h *ConversationHandler) ListMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")
	params := utils.GetPaginationParams(c)

	messages, total, err := h.conversations.ListMessages(c.Request().Context(), userID, conversationID, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, params.Page, params.PageSize)
}

// SendMessage is the request/response send path used at page load; live
// clients send over the socket instead.
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	message, err := h.conversations.SendMessage(c.Request().Context(), userID, conversationID, req.Content)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// MarkAllRead marks every unread message from other participants as read
// for the caller.
func (h *ConversationHandler) MarkAllRead(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	marked, err := h.conversations.MarkAllRead(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"markedAsRead": marked,
	})
}

// ListContacts returns the users the caller may start a conversation with.
func (h *ConversationHandler) ListContacts(c echo.Context) error {
	userID := c.Get("uid").(string)

	contacts, err := h.conversations.ListContacts(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, contacts)
}

// RemoveParticipant deactivates a membership record. Admin-only route.
func (h *ConversationHandler) RemoveParticipant(c echo.Context) error {
	conversationID := c.Param("id")
	targetUserID := c.Param("userId")

	if err := h.conversations.RemoveParticipant(c.Request().Context(), conversationID, targetUserID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"deactivated": targetUserID,
	})
}
