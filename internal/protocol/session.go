// Package protocol implements the per-connection STOMP state machine.
package protocol

import (
	"sync"

	"github.com/rs/xid"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/broker"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// Broker is the shared state a Session reads and mutates.
type Broker interface {
	SendToConnection(id int, frame stomp.Frame) bool
	SendToChannel(channel string, frame stomp.Frame) int
	Subscribe(connectionID int, channel, subscriptionID string)
	Unsubscribe(connectionID int, channel string) bool
	IsSubscribed(connectionID int, channel string) bool
	TryLogin(username, passcode string, connectionID int) broker.LoginStatus
	Disconnect(connectionID int, username string)
	RecordUpload(username string, connectionID int, channel, filename string)
}

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Session interprets the frames of one connection. It is not safe for
// concurrent use: the I/O layer drives each Session from a single goroutine.
type Session struct {
	id        int
	broker    Broker
	state     State
	username  string
	sessionID string

	// subscriptions and channels are inverse maps of the connection's own
	// subscription id to channel bindings.
	subscriptions map[string]string
	channels      map[string]string

	terminateOnce sync.Once
}

func NewSession() *Session {
	return &Session{
		subscriptions: make(map[string]string),
		channels:      make(map[string]string),
	}
}

// Start binds the session to its connection id and the shared broker.
func (s *Session) Start(id int, b Broker) {
	s.id = id
	s.broker = b
	s.sessionID = xid.New().String()
	logger.DebugF("[conn-%d] Session %s started", id, s.sessionID)
}

// Process handles one frame received from the client.
func (s *Session) Process(frame stomp.Frame) {
	if s.state == StateTerminated {
		logger.DebugF("[conn-%d] Ignore %s frame after termination", s.id, frame.Command)
		return
	}

	logger.DebugF("[conn-%d] Receive %s frame", s.id, frame.Command)

	if s.state != StateAuthenticated && frame.Command != stomp.CONNECT {
		s.fail("must be logged in", frame)
	} else {
		switch frame.Command {
		case stomp.CONNECT:
			s.handleConnect(frame)
		case stomp.SEND:
			s.handleSend(frame)
		case stomp.SUBSCRIBE:
			s.handleSubscribe(frame)
		case stomp.UNSUBSCRIBE:
			s.handleUnsubscribe(frame)
		case stomp.DISCONNECT:
			s.handleDisconnect(frame)
		default:
			s.fail("unknown command", frame)
		}
	}

	if s.state == StateTerminated {
		s.Terminate()
		return
	}
	if receipt, ok := frame.Lookup(stomp.HeaderReceipt); ok {
		s.send(stomp.Receipt(receipt))
	}
}

// ShouldTerminate reports whether the connection must be closed.
func (s *Session) ShouldTerminate() bool {
	return s.state == StateTerminated
}

// Terminate releases the subscriptions, the login and the active entry of
// the connection. Only the first call has an effect.
func (s *Session) Terminate() {
	s.terminateOnce.Do(func() {
		s.state = StateTerminated
		if s.broker != nil {
			s.broker.Disconnect(s.id, s.username)
		}
		clear(s.subscriptions)
		clear(s.channels)
		logger.DebugF("[conn-%d] Session terminated", s.id)
	})
}

func (s *Session) State() State {
	return s.state
}

// Username returns the authenticated user, or "" before login.
func (s *Session) Username() string {
	return s.username
}

func (s *Session) ID() int {
	return s.id
}

// Subscriptions returns a copy of the subscription id to channel bindings.
func (s *Session) Subscriptions() map[string]string {
	result := make(map[string]string, len(s.subscriptions))
	for id, channel := range s.subscriptions {
		result[id] = channel
	}
	return result
}

func (s *Session) send(frame stomp.Frame) bool {
	if s.broker == nil {
		return false
	}
	return s.broker.SendToConnection(s.id, frame)
}

// fail answers cause with an ERROR frame and ends the session.
func (s *Session) fail(message string, cause stomp.Frame) {
	logger.WarnF("[conn-%d] %s frame rejected: %s", s.id, cause.Command, message)
	s.send(stomp.Error(message, cause))
	s.state = StateTerminated
}
