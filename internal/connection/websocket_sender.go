package connection

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

// WebSocketConnection is the Sender for a STOMP-over-WebSocket client. Each
// frame goes out as one text message.
type WebSocketConnection struct {
	conn         *websocket.Conn
	id           int
	writeTimeout time.Duration
	pump         *writePump

	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConnection(id int, conn *websocket.Conn, writeTimeout time.Duration, queueSize int) *WebSocketConnection {
	c := &WebSocketConnection{
		conn:         conn,
		id:           id,
		writeTimeout: writeTimeout,
	}
	c.pump = newWritePump(queueSize, writeTimeout, c.write)
	return c
}

func (c *WebSocketConnection) ID() int {
	return c.id
}

func (c *WebSocketConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WebSocketConnection) Send(data []byte) error {
	return c.pump.enqueue(data)
}

func (c *WebSocketConnection) write(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.ErrorF("[conn-%d] Fail to send data, details: %v", c.id, err)
		return err
	}
	logger.DebugF("[conn-%d] Send %d bytes to client", c.id, len(data))
	return nil
}

// Close flushes queued frames, sends a close message if the socket is still
// writable, then closes it. Concurrent calls wait for the first one; later
// calls return nil.
func (c *WebSocketConnection) Close() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.pump.shutdown()
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
		c.pump.wait()
	})
	if !first {
		return nil
	}
	return c.closeErr
}
