package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Viewers only send control frames.
	maxInboundBytes = 512

	sendBuffer = 64
)

// streamConn is the part of a websocket connection the pumps use.
type streamConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one stream viewer. Every frame it receives is a complete context
// snapshot, so frames queued behind a slow write supersede each other.
type Client struct {
	Hub  *Hub
	Conn streamConn
	ID   uuid.UUID
	Send chan []byte
}

func newClient(hub *Hub, conn streamConn) *Client {
	return &Client{Hub: hub, Conn: conn, ID: uuid.New(), Send: make(chan []byte, sendBuffer)}
}

// readPump keeps the idle deadline moving on pongs and exits when the viewer
// disconnects. Inbound data frames are discarded.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxInboundBytes)
	c.Conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Stream", "Viewer left unexpectedly", map[string]interface{}{"client_id": c.ID, "error": err.Error()})
			}
			return
		}
	}
}

// writePump writes the newest queued snapshot and pings on idle. It returns
// when the hub closes Send or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, ok = latest(c.Send, frame)
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Hub.logger.Debug("Stream", "Write failed", map[string]interface{}{"client_id": c.ID, "error": err.Error()})
				return
			}
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// latest drains whatever is already queued and returns the newest frame.
// ok is false when the channel was closed while draining.
func latest(queue <-chan []byte, frame []byte) ([]byte, bool) {
	for {
		select {
		case next, ok := <-queue:
			if !ok {
				return frame, false
			}
			frame = next
		default:
			return frame, true
		}
	}
}
