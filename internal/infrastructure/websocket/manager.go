package websocket

import (
	"context"
	"sync"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/infrastructure/metrics"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/pkg/logger"
)

// RoomService is the persistence-facing collaborator behind the protocol
// handlers. The conversation use case implements it; tests use fakes.
type RoomService interface {
	// ActiveParticipant reports whether the user currently holds an
	// active membership record for the conversation.
	ActiveParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	// AppendMessage validates, persists (atomically, with the sender's
	// self-read and the conversation activity bump) and returns the new
	// message plus the sender's profile for fan-out.
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, *entity.UserSummary, error)

	// RecordReads persists read records with insert-if-absent semantics.
	RecordReads(ctx context.Context, conversationID, userID string, messageIDs []string) error
}

// Manager owns the room registry: conversation id -> set of subscribed
// clients. It is the only server-local mutable shared state of the
// realtime layer, guarded by a single RWMutex.
type Manager struct {
	service RoomService
	limiter *ratelimit.RateLimiter

	mu    sync.RWMutex
	users map[string]map[*Client]struct{} // user id -> that user's open connections
	rooms map[string]map[*Client]struct{} // conversation id -> subscribed connections
	joins map[*Client]map[string]struct{} // reverse index for disconnect cleanup
}

func NewManager(service RoomService, limiter *ratelimit.RateLimiter) *Manager {
	return &Manager{
		service: service,
		limiter: limiter,
		users:   make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		joins:   make(map[*Client]map[string]struct{}),
	}
}

func (m *Manager) Register(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.users[c.UserID] == nil {
		m.users[c.UserID] = make(map[*Client]struct{})
	}
	m.users[c.UserID][c] = struct{}{}
	m.joins[c] = make(map[string]struct{})

	metrics.SocketConnections.Inc()
	logger.Debug("websocket: client registered for user %s", c.UserID)
}

// Unregister removes the client from every room it joined and closes its
// send channel. Safe to call for an already-removed client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(c)
}

func (m *Manager) removeLocked(c *Client) {
	conns, ok := m.users[c.UserID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}

	delete(conns, c)
	if len(conns) == 0 {
		delete(m.users, c.UserID)
	}
	for conversationID := range m.joins[c] {
		m.leaveLocked(conversationID, c)
	}
	delete(m.joins, c)
	c.close()

	metrics.SocketConnections.Dec()
	logger.Debug("websocket: client unregistered for user %s", c.UserID)
}

// JoinRoom subscribes the client; joining a room twice is a no-op.
// Membership authorization happens in the event handler before this call.
func (m *Manager) JoinRoom(conversationID string, c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[conversationID] == nil {
		m.rooms[conversationID] = make(map[*Client]struct{})
	}
	m.rooms[conversationID][c] = struct{}{}
	if m.joins[c] != nil {
		m.joins[c][conversationID] = struct{}{}
	}
}

// LeaveRoom unsubscribes unconditionally; no membership check is needed
// to leave.
func (m *Manager) LeaveRoom(conversationID string, c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(conversationID, c)
	if m.joins[c] != nil {
		delete(m.joins[c], conversationID)
	}
}

func (m *Manager) leaveLocked(conversationID string, c *Client) {
	room, ok := m.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(m.rooms, conversationID)
	}
}

// BroadcastToRoom delivers the payload to every client subscribed to the
// conversation, the originating connection included.
func (m *Manager) BroadcastToRoom(conversationID string, payload []byte) {
	m.broadcast(conversationID, nil, payload)
}

// BroadcastToRoomExcept delivers to every subscribed client other than
// the excluded one.
func (m *Manager) BroadcastToRoomExcept(conversationID string, except *Client, payload []byte) {
	m.broadcast(conversationID, except, payload)
}

func (m *Manager) broadcast(conversationID string, except *Client, payload []byte) {
	m.mu.RLock()
	room := m.rooms[conversationID]
	targets := make([]*Client, 0, len(room))
	for c := range room {
		if c != except {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.send(c, payload)
	}
}

// SendToUser targets every open connection of one user, subscribed to the
// room or not.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mu.RLock()
	conns := m.users[userID]
	targets := make([]*Client, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.send(c, payload)
	}
}

// send drops clients whose send buffer is full; a stalled consumer must
// not stall the room. Sending to an already-closed client is a no-op:
// broadcasts snapshot the room before sending and may race a disconnect.
func (m *Manager) send(c *Client, payload []byte) {
	_, full := c.trySend(payload)
	if !full {
		return
	}

	logger.Warn("websocket: send buffer full for user %s, dropping connection", c.UserID)
	m.mu.Lock()
	m.removeLocked(c)
	m.mu.Unlock()
}

// RoomSize reports the current subscriber count of a conversation room.
func (m *Manager) RoomSize(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[conversationID])
}
