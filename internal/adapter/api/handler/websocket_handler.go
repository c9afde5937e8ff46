package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"brokerdesk/internal/infrastructure/token"
	ws "brokerdesk/internal/infrastructure/websocket"
	"brokerdesk/pkg/errors"
	"brokerdesk/pkg/logger"
	"brokerdesk/pkg/response"
)

type WebSocketHandler struct {
	manager  *ws.Manager
	issuer   *token.Issuer
	upgrader gorillaws.Upgrader
}

func NewWebSocketHandler(manager *ws.Manager, issuer *token.Issuer, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		issuer:  issuer,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleWebSocket verifies the socket token BEFORE upgrading; a missing,
// invalid or expired token fails the handshake and no connection is
// established. The verified identity is attached to the connection and
// never re-checked per event.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	tokenStr := c.QueryParam("token")
	if tokenStr == "" {
		if auth := c.Request().Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			tokenStr = auth[7:]
		}
	}
	if tokenStr == "" {
		return response.Error(c, errors.Unauthorized("Socket token required", nil))
	}

	claims, err := h.issuer.Verify(tokenStr)
	if err != nil {
		return response.Error(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("websocket: upgrade failed for user %s: %v", claims.UserID, err)
		return nil
	}

	client := ws.NewClient(claims.UserID, claims.Role, conn)
	h.manager.Register(client)

	go client.WritePump()
	go client.ReadPump(h.manager)

	return nil
}
