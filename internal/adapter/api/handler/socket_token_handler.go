package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"brokerdesk/internal/infrastructure/token"
	"brokerdesk/internal/usecase"
	"brokerdesk/pkg/logger"
	"brokerdesk/pkg/response"

	apperrors "brokerdesk/pkg/errors"
)

type SocketTokenHandler struct {
	issuer        *token.Issuer
	conversations *usecase.ConversationUseCase
}

func NewSocketTokenHandler(issuer *token.Issuer, conversations *usecase.ConversationUseCase) *SocketTokenHandler {
	return &SocketTokenHandler{
		issuer:        issuer,
		conversations: conversations,
	}
}

// GetToken mints the short-lived socket token for the authenticated
// session. The response is the bare shape the socket client expects, not
// the standard envelope.
func (h *SocketTokenHandler) GetToken(c echo.Context) error {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		return response.Error(c, apperrors.Unauthorized("Authentication required", nil))
	}

	user, err := h.conversations.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	signed, err := h.issuer.Issue(user.ID, user.Role)
	if err != nil {
		logger.Error("socket token: signing failed for user %s: %v", user.ID, err)
		return response.Error(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token": signed,
	})
}
