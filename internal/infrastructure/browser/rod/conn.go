package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/gorilla/websocket"
)

var _ cdp.WebSocketable = (*wsConn)(nil)

// wsConn is the CDP transport of one control session. Closing it ends the
// session; the browser process does not notice beyond the dropped socket.
type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func dialWS(ctx context.Context, wsEndpoint string) (*wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  defaultHandshakeTimeout,
		EnableCompression: false,
	}

	conn, resp, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsEndpoint, err)
	}

	return &wsConn{conn: conn}, nil
}

func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(defaultHandshakeTimeout))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
