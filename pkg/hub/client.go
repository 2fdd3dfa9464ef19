package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers only answer pings.
	maxMessageSize = 4 * 1024
)

// Client is one viewer of a stream (status, levels or analysis). conn is
// nil for in-process subscribers from Subscribe.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient attaches a websocket viewer to h. If h has already stopped the
// client starts out closed and Run returns after the close frame.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, 256),
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
	return client
}

// Run serves the viewer until it disconnects or the hub drops it. The fiber
// websocket handler must not return before Run does.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump discards viewer input and turns read errors and missed pongs
// into a disconnect.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn once Run has started.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped as slow, or the hub stopped.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(frameType(msg), msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// frameType maps a hub message to its websocket frame type. Events are text.
func frameType(msg Message) int {
	if msg.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
