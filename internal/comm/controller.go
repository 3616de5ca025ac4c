package comm

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabrieleiannetti/cyclone/internal/protocol"
)

// Controller is the connect side of the comm endpoint: one connection,
// send then receive, rebuilt destructively on any transport error.
type Controller struct {
	url    string
	dialer websocket.Dialer
	conn   *websocket.Conn
}

// NewController creates a Controller targeting target:port. Dial must be
// called before use.
func NewController(target string, port int) *Controller {
	return &Controller{
		url:    fmt.Sprintf("ws://%s:%d/", target, port),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Dial establishes (or re-establishes) the connection, closing any
// previous one first — reconnect is always destructive.
func (c *Controller) Dial() error {
	c.closeConn()
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("comm: dial %s: %w", c.url, err)
	}
	c.conn = conn
	return nil
}

// Send transmits one message. The controller must alternate Send then
// Recv; sending twice without an intervening receive is a programming
// error enforced only by caller discipline, as in the master's mirror.
func (c *Controller) Send(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if c.conn == nil {
		return fmt.Errorf("comm: send before dial")
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Recv waits up to timeout for the reply to the last Send. ErrTimeout is
// returned (not wrapped as fatal) on expiry so the caller can retry.
func (c *Controller) Recv(timeout time.Duration) (protocol.Message, error) {
	if c.conn == nil {
		return protocol.Message{}, fmt.Errorf("comm: recv before dial")
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Message{}, err
	}

	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return protocol.Message{}, ErrTimeout
		}
		return protocol.Message{}, fmt.Errorf("comm: recv: %w", err)
	}

	return protocol.Decode(string(frame))
}

// Close tears down the connection.
func (c *Controller) Close() error {
	return c.closeConn()
}

func (c *Controller) closeConn() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
