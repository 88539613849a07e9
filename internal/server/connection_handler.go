package server

import (
	"io"
	"net"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/broker"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// transport is the write side of a client socket.
type transport interface {
	connection.Sender
	io.Closer
	RemoteAddr() string
}

// connectionHandler couples one client socket with its decoder and session.
// Only one goroutine at a time may call handleChunk and release.
type connectionHandler struct {
	id        int
	transport transport
	decoder   *stomp.Decoder
	session   *protocol.Session
}

func newConnectionHandler(id int, t transport, b *broker.Broker, maxFrameSize int) *connectionHandler {
	decoder := stomp.NewDecoder()
	decoder.MaxFrameSize = maxFrameSize

	h := &connectionHandler{
		id:        id,
		transport: t,
		decoder:   decoder,
		session:   protocol.NewSession(),
	}
	logger.DebugF("[conn-%d] Accepted new connection from %s", id, t.RemoteAddr())
	b.RegisterConnection(id, t)
	h.session.Start(id, b)
	return h
}

// handleChunk decodes data and processes every complete frame. It reports
// false once the session ended.
func (h *connectionHandler) handleChunk(data []byte) bool {
	for _, frame := range h.decoder.Write(data) {
		h.session.Process(frame)
		if h.session.ShouldTerminate() {
			return false
		}
	}
	return !h.session.ShouldTerminate()
}

// release terminates the session and closes the socket.
func (h *connectionHandler) release() {
	h.session.Terminate()
	h.closeTransport()
	if dropped := h.decoder.Dropped(); dropped > 0 {
		logger.WarnF("[conn-%d] %d malformed or oversize frames dropped", h.id, dropped)
	}
}

func (h *connectionHandler) closeTransport() {
	if err := h.transport.Close(); err != nil && !connection.IsNetClosedError(err) {
		logger.WarnF("[conn-%d] Error occured while closing connection, details: %v", h.id, err)
	}
}

// handleConnection serves conn on the calling goroutine until the client
// leaves or the session ends.
func (s *Server) handleConnection(id int, conn net.Conn) {
	defer func() {
		<-s.sem
		s.wg.Done()
	}()

	h := newConnectionHandler(id, connection.NewConnection(id, conn, s.opts.WriteTimeout, s.opts.SendQueueSize), s.broker, s.opts.MaxFrameSize)
	s.track(h)
	defer func() {
		h.release()
		s.untrack(h)
		logger.DebugF("[conn-%d] Connection closed", id)
	}()

	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 && !h.handleChunk(buf[:n]) {
			return
		}
		if err != nil {
			connection.HandleReadError(id, err)
			return
		}
	}
}
