package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

func (s *Session) handleUnsubscribe(frame stomp.Frame) {
	id, ok := frame.Lookup(stomp.HeaderID)
	if !ok {
		s.fail("missing id header", frame)
		return
	}

	channel, ok := s.subscriptions[id]
	if !ok {
		s.fail("subscription id not found", frame)
		return
	}

	delete(s.subscriptions, id)
	delete(s.channels, channel)
	s.broker.Unsubscribe(s.id, channel)
	logger.DebugF("[conn-%d] Unsubscribed from %s", s.id, channel)
}
