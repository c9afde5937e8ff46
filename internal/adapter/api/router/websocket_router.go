package router

import (
	"github.com/labstack/echo/v4"

	"brokerdesk/internal/adapter/api/handler"
	"brokerdesk/internal/adapter/api/middleware"
)

// SetupWebSocketRouter registers the socket token endpoint and the
// persistent-connection handshake. The /ws route carries no session
// middleware: the handshake authenticates with the socket token instead.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, tokenHandler *handler.SocketTokenHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/socket/token", tokenHandler.GetToken, authMiddleware.Authenticate)
	e.GET("/ws", wsHandler.HandleWebSocket)
}
