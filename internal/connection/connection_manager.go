// Package connection holds the send side of client connections and the
// registry of connections that are currently active.
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

// Manager maps connection ids to their Sender. Operations on different ids
// never contend with each other.
type Manager struct {
	connections sync.Map
}

// NewManager creates an empty connection manager.
func NewManager() *Manager {
	return &Manager{}
}

// AddConnection registers sender under id, replacing any previous entry.
func (cm *Manager) AddConnection(id int, sender Sender) {
	cm.connections.Store(id, sender)
	logger.DebugF("[conn-%d] Connection registered", id)
}

// RemoveConnection forgets id. It reports whether id was registered.
func (cm *Manager) RemoveConnection(id int) bool {
	_, loaded := cm.connections.LoadAndDelete(id)
	if loaded {
		logger.DebugF("[conn-%d] Connection unregistered", id)
	}
	return loaded
}

// GetConnection returns the Sender registered under id.
func (cm *Manager) GetConnection(id int) (Sender, bool) {
	if value, ok := cm.connections.Load(id); ok {
		return value.(Sender), true
	}
	return nil, false
}

// Count returns the number of registered connections.
func (cm *Manager) Count() int {
	n := 0
	cm.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Range calls fn for every registered connection until fn returns false.
func (cm *Manager) Range(fn func(id int, sender Sender) bool) {
	cm.connections.Range(func(key, value any) bool {
		return fn(key.(int), value.(Sender))
	})
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(id int, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[conn-%d] Client close connection", id)
	case os.IsTimeout(err):
		logger.WarnF("[conn-%d] Reading timeout", id)
	case IsNetClosedError(err):
		logger.DebugF("[conn-%d] Connection closed locally", id)
	default:
		logger.ErrorF("[conn-%d] Error occured while reading frame, details: %v", id, err)
	}
}
