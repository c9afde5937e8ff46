package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"brokerdesk/internal/infrastructure/metrics"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/pkg/errors"
	"brokerdesk/pkg/logger"
)

// HandleClientEvent dispatches one inbound frame. Every failure is
// converted to a scoped error event on the originating connection only;
// nothing here terminates the connection.
func (m *Manager) HandleClientEvent(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.sendError(c, "Invalid event format")
		return
	}

	metrics.SocketEvents.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case EventJoinConversation:
		m.handleJoin(c, env.Data)
	case EventLeaveConversation:
		m.handleLeave(c, env.Data)
	case EventMessageSend:
		m.handleSendMessage(c, env.Data)
	case EventTypingStart:
		m.handleTyping(c, env.Data, EventTypingStart)
	case EventTypingStop:
		m.handleTyping(c, env.Data, EventTypingStop)
	case EventMessageRead:
		m.handleRead(c, env.Data)
	default:
		logger.Debug("websocket: unknown event %q from user %s", env.Event, c.UserID)
		m.sendError(c, "Unknown event type")
	}
}

func (m *Manager) handleJoin(c *Client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		m.sendError(c, "Missing conversationId")
		return
	}

	ok, err := m.service.ActiveParticipant(context.Background(), p.ConversationID, c.UserID)
	if err != nil {
		logger.Error("websocket: membership lookup failed for user %s, conversation %s: %v", c.UserID, p.ConversationID, err)
		m.sendError(c, "Failed to join conversation")
		return
	}
	if !ok {
		m.sendError(c, "Not a participant of this conversation")
		return
	}

	m.JoinRoom(p.ConversationID, c)
	logger.Debug("websocket: user %s joined conversation %s", c.UserID, p.ConversationID)
}

func (m *Manager) handleLeave(c *Client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		m.sendError(c, "Missing conversationId")
		return
	}

	m.LeaveRoom(p.ConversationID, c)
	logger.Debug("websocket: user %s left conversation %s", c.UserID, p.ConversationID)
}

func (m *Manager) handleSendMessage(c *Client, data json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		m.sendError(c, "Missing conversationId")
		return
	}

	msg, sender, err := m.service.AppendMessage(context.Background(), p.ConversationID, c.UserID, p.Content)
	if err != nil {
		m.sendServiceError(c, err, "Failed to send message")
		return
	}

	payload, err := marshalEvent(EventMessageNew, NewMessageEvent{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		Sender:         sender,
	})
	if err != nil {
		logger.Error("websocket: failed to marshal message:new for conversation %s: %v", p.ConversationID, err)
		return
	}

	// The sender's own connections receive the broadcast too; the client
	// reconciles its optimistic append by message id.
	m.BroadcastToRoom(p.ConversationID, payload)
}

// Typing indicators are relayed, never persisted, and the server holds no
// typing timers; clients emit stop themselves. Non-participants are
// dropped silently for both start and stop: the membership check still
// blocks spoofed relays, but a transient UX signal does not warrant an
// error round-trip.
func (m *Manager) handleTyping(c *Client, data json.RawMessage, event string) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		return
	}

	if allowed, _ := m.limiter.Allow(c.UserID, ratelimit.ActionTyping); !allowed {
		return
	}

	ok, err := m.service.ActiveParticipant(context.Background(), p.ConversationID, c.UserID)
	if err != nil || !ok {
		return
	}

	payload, err := marshalEvent(event, TypingEvent{
		UserID:         c.UserID,
		UserName:       p.UserName,
		ConversationID: p.ConversationID,
	})
	if err != nil {
		return
	}

	m.BroadcastToRoomExcept(p.ConversationID, c, payload)
}

func (m *Manager) handleRead(c *Client, data json.RawMessage) {
	var p readPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		m.sendError(c, "Missing conversationId")
		return
	}
	if len(p.MessageIDs) == 0 {
		m.sendError(c, "messageIds is required")
		return
	}

	if err := m.service.RecordReads(context.Background(), p.ConversationID, c.UserID, p.MessageIDs); err != nil {
		m.sendServiceError(c, err, "Failed to mark messages as read")
		return
	}

	payload, err := marshalEvent(EventMessageRead, ReadEvent{
		UserID:     c.UserID,
		MessageIDs: p.MessageIDs,
	})
	if err != nil {
		return
	}

	m.BroadcastToRoomExcept(p.ConversationID, c, payload)
}

// sendServiceError maps a service failure onto the scoped error event.
// Authorization and validation messages pass through; anything else is
// logged with full context and surfaced generically.
func (m *Manager) sendServiceError(c *Client, err error, generic string) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Code {
		case errors.CodeForbidden, errors.CodeBadRequest, errors.CodeTooManyRequests, errors.CodeNotFound:
			m.sendError(c, appErr.Message)
			return
		}
	}
	logger.Error("websocket: %s (user %s): %v", generic, c.UserID, err)
	m.sendError(c, generic)
}

func (m *Manager) sendError(c *Client, message string) {
	payload, err := marshalEvent(EventError, ErrorEvent{Message: message})
	if err != nil {
		return
	}
	m.send(c, payload)
}
