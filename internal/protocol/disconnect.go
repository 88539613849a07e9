package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// handleDisconnect acknowledges the receipt before the session is torn down.
func (s *Session) handleDisconnect(frame stomp.Frame) {
	if receipt, ok := frame.Lookup(stomp.HeaderReceipt); ok {
		s.send(stomp.Receipt(receipt))
	}
	s.state = StateTerminated
	logger.InfoF("[conn-%d] Client %s disconnect", s.id, s.username)
}
