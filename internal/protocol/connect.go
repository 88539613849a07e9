package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/broker"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

func (s *Session) handleConnect(frame stomp.Frame) {
	if s.state == StateAuthenticated {
		s.fail("client already connected", frame)
		return
	}

	login := frame.Header(stomp.HeaderLogin)
	passcode, hasPasscode := frame.Lookup(stomp.HeaderPasscode)
	if login == "" || !hasPasscode {
		s.fail("missing login or passcode header", frame)
		return
	}

	switch status := s.broker.TryLogin(login, passcode, s.id); status {
	case broker.LoginCreated, broker.LoginOK:
		s.state = StateAuthenticated
		s.username = login
		logger.InfoF("[conn-%d] User %s logged in (%s)", s.id, login, status)
		s.send(stomp.Connected(s.sessionID))
	case broker.LoginWrongPassword:
		s.fail("wrong password", frame)
	case broker.LoginAlreadyLoggedIn:
		s.fail("user already logged in", frame)
	default:
		s.fail("missing login or passcode header", frame)
	}
}
