package protocol

import (
	"strconv"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

func (s *Session) handleSubscribe(frame stomp.Frame) {
	destination := frame.Header(stomp.HeaderDestination)
	id, hasID := frame.Lookup(stomp.HeaderID)
	if destination == "" || !hasID {
		s.fail("missing destination or id header", frame)
		return
	}
	if _, err := strconv.Atoi(id); err != nil {
		s.fail("invalid subscription id format", frame)
		return
	}

	// Keep one channel per id and one id per channel.
	if previous, ok := s.subscriptions[id]; ok && previous != destination {
		s.broker.Unsubscribe(s.id, previous)
		delete(s.channels, previous)
	}
	if previous, ok := s.channels[destination]; ok && previous != id {
		delete(s.subscriptions, previous)
	}

	s.broker.Subscribe(s.id, destination, id)
	s.subscriptions[id] = destination
	s.channels[destination] = id
	logger.DebugF("[conn-%d] Subscribed to %s with id %s", s.id, destination, id)
}
