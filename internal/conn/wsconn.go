package conn

import (
	"net"
	"time"

	ws "github.com/gorilla/websocket"
)

// wsConn adapts a *gorilla/websocket.Conn's message framing to the
// net.Conn byte-stream interface the rest of respkit expects, by
// buffering the current inbound message and handing it out across
// however many Read calls the caller makes, the way a net.Conn would.
type wsConn struct {
	*ws.Conn
	pending []byte
}

func (c *wsConn) Read(b []byte) (int, error) {
	for len(c.pending) == 0 {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.pending = data
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(ws.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.Conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.Conn.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)
