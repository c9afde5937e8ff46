package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/pkg/errors"
)

type appendCall struct {
	ConversationID string
	SenderID       string
	Content        string
}

type readCall struct {
	ConversationID string
	UserID         string
	MessageIDs     []string
}

// fakeRoomService mirrors the real service's authorization and
// validation so protocol tests exercise the full event contract.
type fakeRoomService struct {
	active    map[string]bool // conversationID:userID
	appendErr error
	appends   []appendCall
	reads     []readCall
}

func newFakeRoomService() *fakeRoomService {
	return &fakeRoomService{active: make(map[string]bool)}
}

func (s *fakeRoomService) allow(conversationID, userID string) {
	s.active[conversationID+":"+userID] = true
}

func (s *fakeRoomService) ActiveParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.active[conversationID+":"+userID], nil
}

func (s *fakeRoomService) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, *entity.UserSummary, error) {
	if s.appendErr != nil {
		return nil, nil, s.appendErr
	}
	if !s.active[conversationID+":"+senderID] {
		return nil, nil, errors.Forbidden("Not a participant of this conversation", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, errors.BadRequest("Message content is required", nil)
	}
	s.appends = append(s.appends, appendCall{conversationID, senderID, content})
	msg := &entity.Message{
		ID:             "m-1",
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	return msg, &entity.UserSummary{ID: senderID, Name: "Sender"}, nil
}

func (s *fakeRoomService) RecordReads(ctx context.Context, conversationID, userID string, messageIDs []string) error {
	if !s.active[conversationID+":"+userID] {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}
	s.reads = append(s.reads, readCall{conversationID, userID, messageIDs})
	return nil
}

func newTestManager() (*Manager, *fakeRoomService) {
	service := newFakeRoomService()
	return NewManager(service, ratelimit.NewRateLimiter()), service
}

func newTestClient(userID string) *Client {
	return NewClient(userID, entity.RoleApplicant, nil)
}

func recvEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.Send:
		var env Envelope
		assert.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected an event, got none")
		return Envelope{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("expected no event, got %s", raw)
	default:
	}
}

func TestManagerJoinIsIdempotent(t *testing.T) {
	m, _ := newTestManager()
	c := newTestClient("u1")
	m.Register(c)

	m.JoinRoom("c1", c)
	m.JoinRoom("c1", c)

	assert.Equal(t, 1, m.RoomSize("c1"))
}

func TestManagerLeaveAlwaysSucceeds(t *testing.T) {
	m, _ := newTestManager()
	c := newTestClient("u1")
	m.Register(c)

	// Leaving a room never joined is a no-op.
	m.LeaveRoom("c1", c)
	assert.Equal(t, 0, m.RoomSize("c1"))

	m.JoinRoom("c1", c)
	m.LeaveRoom("c1", c)
	assert.Equal(t, 0, m.RoomSize("c1"))
}

func TestManagerBroadcastReachesExactlyRoomMembers(t *testing.T) {
	m, _ := newTestManager()
	members := []*Client{newTestClient("u1"), newTestClient("u2"), newTestClient("u3")}
	outsider := newTestClient("u4")

	for _, c := range members {
		m.Register(c)
		m.JoinRoom("c1", c)
	}
	m.Register(outsider)

	m.BroadcastToRoom("c1", []byte(`{"event":"message:new"}`))

	for _, c := range members {
		env := recvEvent(t, c)
		assert.Equal(t, "message:new", env.Event)
	}
	assertNoEvent(t, outsider)
}

func TestManagerBroadcastExceptExcludesSender(t *testing.T) {
	m, _ := newTestManager()
	sender := newTestClient("u1")
	other := newTestClient("u2")

	for _, c := range []*Client{sender, other} {
		m.Register(c)
		m.JoinRoom("c1", c)
	}

	m.BroadcastToRoomExcept("c1", sender, []byte(`{"event":"typing:start"}`))

	assertNoEvent(t, sender)
	env := recvEvent(t, other)
	assert.Equal(t, "typing:start", env.Event)
}

func TestManagerUnregisterRemovesFromAllRooms(t *testing.T) {
	m, _ := newTestManager()
	c := newTestClient("u1")
	m.Register(c)
	m.JoinRoom("c1", c)
	m.JoinRoom("c2", c)

	m.Unregister(c)

	assert.Equal(t, 0, m.RoomSize("c1"))
	assert.Equal(t, 0, m.RoomSize("c2"))

	// Double unregister must not panic on the closed channel.
	m.Unregister(c)
}

func TestManagerSendAfterDisconnectIsDropped(t *testing.T) {
	m, _ := newTestManager()
	c := newTestClient("u1")
	m.Register(c)
	m.JoinRoom("c1", c)

	// Broadcasts snapshot the room before sending, so a send can land
	// after the client disconnected. It must be dropped, never panic.
	m.Unregister(c)
	assert.NotPanics(t, func() {
		m.send(c, []byte(`{"event":"message:new"}`))
	})

	sent, full := c.trySend([]byte(`{"event":"message:new"}`))
	assert.False(t, sent)
	assert.False(t, full)
}

func TestManagerBroadcastDuringConnectionChurn(t *testing.T) {
	m, _ := newTestManager()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.BroadcastToRoom("c1", []byte(`{"event":"message:new"}`))
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c := newTestClient("u1")
					m.Register(c)
					m.JoinRoom("c1", c)
					m.Unregister(c)
				}
			}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestManagerSendToUserTargetsAllConnections(t *testing.T) {
	m, _ := newTestManager()
	first := newTestClient("u1")
	second := newTestClient("u1")
	other := newTestClient("u2")

	m.Register(first)
	m.Register(second)
	m.Register(other)

	m.SendToUser("u1", []byte(`{"event":"error"}`))

	recvEvent(t, first)
	recvEvent(t, second)
	assertNoEvent(t, other)
}
