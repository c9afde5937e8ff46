package router

import (
	"github.com/labstack/echo/v4"

	"brokerdesk/internal/adapter/api/handler"
	"brokerdesk/internal/adapter/api/middleware"
)

// SetupConversationRouter registers the request/response conversation
// endpoints used at page load.
func SetupConversationRouter(e *echo.Echo, conversationHandler *handler.ConversationHandler, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware) {
	group := e.Group("/v1/conversations")
	group.Use(authMiddleware.Authenticate)

	group.GET("", conversationHandler.ListConversations)
	group.POST("", conversationHandler.CreateConversation)
	group.GET("/contacts", conversationHandler.ListContacts)
	group.GET("/:id/messages", conversationHandler.ListMessages)
	group.POST("/:id/messages", conversationHandler.SendMessage)
	group.PUT("/:id/read", conversationHandler.MarkAllRead)

	group.DELETE("/:id/participants/:userId", conversationHandler.RemoveParticipant, adminMiddleware.AdminOnly)
}
