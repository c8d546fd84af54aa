package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to relay.Transport. The bridge actor is
// the only WriteFrame caller, but the keepalive pinger writes control frames
// concurrently, hence the write mutex.
type wsConn struct {
	rawConn   *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

func newWSConn(rawConn *websocket.Conn, cfg Options) *wsConn {
	rawConn.SetReadLimit(cfg.ReadLimit)
	_ = rawConn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	return &wsConn{rawConn: rawConn, writeWait: cfg.WriteWait}
}

// ReadFrame skips non-text frames; the wire protocol is JSON text only.
func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.rawConn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteFrame(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.rawConn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

func (c *wsConn) Close() error {
	return c.rawConn.Close()
}
