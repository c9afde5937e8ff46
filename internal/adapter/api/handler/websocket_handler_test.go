package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/internal/infrastructure/token"
	ws "brokerdesk/internal/infrastructure/websocket"
	"brokerdesk/pkg/errors"
)

// stubRoomService treats every user as an active participant of every
// conversation and persists nothing.
type stubRoomService struct{}

func (stubRoomService) ActiveParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return true, nil
}

func (stubRoomService) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, *entity.UserSummary, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, errors.BadRequest("Message content is required", nil)
	}
	return &entity.Message{
		ID:             "m-1",
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}, &entity.UserSummary{ID: senderID, Name: "Stub"}, nil
}

func (stubRoomService) RecordReads(ctx context.Context, conversationID, userID string, messageIDs []string) error {
	return nil
}

func newSocketTestServer(t *testing.T, issuer *token.Issuer) *httptest.Server {
	t.Helper()
	manager := ws.NewManager(stubRoomService{}, ratelimit.NewRateLimiter())
	h := NewWebSocketHandler(manager, issuer, "http://localhost:5000")

	e := echo.New()
	e.GET("/ws", h.HandleWebSocket)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func TestHandleWebSocketRejectsMissingToken(t *testing.T) {
	server := newSocketTestServer(t, token.NewIssuer("test-secret", time.Hour))

	resp, err := http.Get(server.URL + "/ws")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocketRejectsInvalidToken(t *testing.T) {
	issuer := token.NewIssuer("test-secret", time.Hour)
	server := newSocketTestServer(t, issuer)

	// Signed with a different secret.
	forged, err := token.NewIssuer("other-secret", time.Hour).Issue("u1", entity.RoleApplicant)
	assert.NoError(t, err)

	resp, err := http.Get(server.URL + "/ws?token=" + forged)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocketRejectsExpiredToken(t *testing.T) {
	issuer := token.NewIssuer("test-secret", time.Hour)
	server := newSocketTestServer(t, issuer)

	expired, err := token.NewIssuer("test-secret", -time.Minute).Issue("u1", entity.RoleApplicant)
	assert.NoError(t, err)

	resp, err := http.Get(server.URL + "/ws?token=" + expired)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocketEndToEnd(t *testing.T) {
	issuer := token.NewIssuer("test-secret", time.Hour)
	server := newSocketTestServer(t, issuer)

	signed, err := issuer.Issue("u1", entity.RoleApplicant)
	assert.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + signed
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	defer conn.Close()

	join, _ := json.Marshal(map[string]interface{}{
		"event": "join:conversation",
		"data":  map[string]string{"conversationId": "c1"},
	})
	assert.NoError(t, conn.WriteMessage(gorillaws.TextMessage, join))

	send, _ := json.Marshal(map[string]interface{}{
		"event": "message:send",
		"data":  map[string]string{"conversationId": "c1", "content": "  Hello  "},
	})
	assert.NoError(t, conn.WriteMessage(gorillaws.TextMessage, send))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	assert.NoError(t, err)

	var env ws.Envelope
	assert.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, ws.EventMessageNew, env.Event)

	var msg ws.NewMessageEvent
	assert.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, "u1", msg.SenderID)
}
