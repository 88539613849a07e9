package connection

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

// ErrConnectionClosed is returned by Send after Close or a failed write.
var ErrConnectionClosed = errors.New("connection closed")

// Sender hands encoded frames to one client. Send must not block on the
// network.
type Sender interface {
	Send(data []byte) error
}

// Connection is the Sender for a TCP client. Frames are queued and written
// in order by the connection's own writer goroutine.
type Connection struct {
	conn         net.Conn
	id           int
	writeTimeout time.Duration
	pump         *writePump

	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps conn and starts its writer. writeTimeout<=0 disables
// write deadlines; queueSize<=0 selects DefaultQueueSize.
func NewConnection(id int, conn net.Conn, writeTimeout time.Duration, queueSize int) *Connection {
	c := &Connection{
		conn:         conn,
		id:           id,
		writeTimeout: writeTimeout,
	}
	c.pump = newWritePump(queueSize, writeTimeout, c.write)
	return c
}

// ID returns the connection id.
func (c *Connection) ID() int {
	return c.id
}

// RemoteAddr returns the client address.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Send queues data without blocking. It returns ErrSendQueueFull when the
// queue is full and ErrConnectionClosed once the connection is gone.
func (c *Connection) Send(data []byte) error {
	return c.pump.enqueue(data)
}

func (c *Connection) write(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return Send(c.conn, data, c.id)
}

// Close flushes queued frames, waiting at most one write timeout, then closes
// the socket. Concurrent calls wait for the first one; later calls return nil.
func (c *Connection) Close() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.pump.shutdown()
		c.closeErr = c.conn.Close()
		c.pump.wait()
	})
	if !first {
		return nil
	}
	return c.closeErr
}

// Send writes data to conn, retrying short writes.
func Send(conn net.Conn, data []byte, id int) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[conn-%d] Fail to send data, details: %v", id, err)
			return err
		}
		total += n
	}
	logger.DebugF("[conn-%d] Send %d bytes to client", id, total)
	return nil
}
