package hub

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10

	// Viewers only send control frames.
	readLimit = 4 * 1024

	outboxDepth = 64
)

// Conn is the part of a websocket connection a viewer needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one viewer connection.
type Client struct {
	ID string

	hub    *Hub
	conn   Conn
	outbox chan Frame
}

// NewClient joins conn to hub. It fails if ctx ends before the hub takes the
// viewer, which happens when the hub is not running.
func NewClient(ctx context.Context, hub *Hub, conn Conn) (*Client, error) {
	c := &Client{
		ID:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		outbox: make(chan Frame, outboxDepth),
	}
	select {
	case hub.join <- c:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run pumps frames to the viewer until either side closes.
func (c *Client) Run() {
	go c.send()
	c.receive()
}

// receive only watches for disconnects and keeps the read deadline fresh.
func (c *Client) receive() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-time.After(writeTimeout):
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// send is the only writer on the connection.
func (c *Client) send() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		select {
		case f, ok := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(f.opcode(), f.Data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
