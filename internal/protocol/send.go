package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

func (s *Session) handleSend(frame stomp.Frame) {
	destination := frame.Header(stomp.HeaderDestination)
	if destination == "" {
		s.fail("missing destination header", frame)
		return
	}
	if !s.broker.IsSubscribed(s.id, destination) {
		s.fail("not subscribed to "+destination, frame)
		return
	}

	delivered := s.broker.SendToChannel(destination, frame)
	logger.DebugF("[conn-%d] Message to %s delivered to %d subscribers", s.id, destination, delivered)

	if filename := uploadName(frame); filename != "" {
		s.broker.RecordUpload(s.username, s.id, destination, filename)
	}
}

// uploadName returns the file a SEND frame carries, if any.
func uploadName(frame stomp.Frame) string {
	if filename := frame.Header(stomp.HeaderFilename); filename != "" {
		return filename
	}
	return frame.Header(stomp.HeaderFile)
}
