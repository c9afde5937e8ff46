package websocket

import (
	"sync"

	"github.com/gorilla/websocket"

	"brokerdesk/pkg/logger"
)

// maxEventSize bounds a single inbound frame. The 4000-char content cap
// is enforced in the messaging service; this is the transport backstop.
const maxEventSize = 8192

// Client is the per-connection state attached at handshake time. The
// identity fields are verified once and trusted for the connection's
// lifetime.
type Client struct {
	UserID string
	Role   string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userID, role string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// trySend queues the payload unless the connection is already closed or
// its buffer is full; full reports the latter. Queueing and close hold
// the same mutex, so a broadcast racing a disconnect can never send on
// the closed channel.
func (c *Client) trySend(payload []byte) (sent, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, false
	}

	select {
	case c.Send <- payload:
		return true, false
	default:
		return false, true
	}
}

// close closes the send channel exactly once; later calls are no-ops.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump consumes inbound frames and dispatches them until the
// connection drops, then unregisters the client from every room.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxEventSize)

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket: read error for user %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientEvent(c, raw)
	}
}

// WritePump drains the send channel onto the connection. It exits when
// the channel is closed by the manager.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("websocket: write error for user %s: %v", c.UserID, err)
			return
		}
	}
}
