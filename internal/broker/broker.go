// Package broker holds the state shared by every client connection: the
// active connections, the channel subscriptions and the user directory.
package broker

import (
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/audit"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// Recorder receives audit events. Record must not block.
type Recorder interface {
	Record(e audit.Event)
}

type Option func(*Broker)

// WithRecorder sends login, logout and upload events to r.
func WithRecorder(r Recorder) Option {
	return func(b *Broker) {
		b.recorder = r
	}
}

// Stats is a snapshot of the broker counters.
type Stats struct {
	ActiveConnections int    `json:"active_connections"`
	Channels          int    `json:"channels"`
	Users             int    `json:"users"`
	LoggedInUsers     int    `json:"logged_in_users"`
	DeliveredMessages uint64 `json:"delivered_messages"`
	LastMessageID     uint64 `json:"last_message_id"`
}

// Broker is safe for concurrent use. It never blocks on a global lock: each
// channel and each user is guarded separately.
type Broker struct {
	connections *connection.Manager
	registry    *Registry
	users       *UserDirectory
	messageIDs  MessageIDCounter
	recorder    Recorder
	delivered   atomic.Uint64
}

func New(opts ...Option) *Broker {
	b := &Broker{
		connections: connection.NewManager(),
		registry:    NewRegistry(),
		users:       NewUserDirectory(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) RegisterConnection(id int, sender connection.Sender) {
	b.connections.AddConnection(id, sender)
}

// RemoveConnection drops id from the active connections and from every
// channel it subscribed to.
func (b *Broker) RemoveConnection(id int) {
	channels := b.registry.RemoveAll(id)
	if len(channels) > 0 {
		logger.DebugF("[conn-%d] Removed from channels %v", id, channels)
	}
	b.connections.RemoveConnection(id)
}

// Disconnect releases everything held by connection id: its subscriptions,
// the session of username if id owns it, and its active entry. It may be
// called more than once.
func (b *Broker) Disconnect(id int, username string) {
	if username != "" {
		b.Logout(username, id)
	}
	b.RemoveConnection(id)
}

// SendToConnection encodes frame and writes it to connection id. It returns
// false when the connection is gone or the write failed.
func (b *Broker) SendToConnection(id int, frame stomp.Frame) bool {
	sender, ok := b.connections.GetConnection(id)
	if !ok {
		return false
	}
	if err := sender.Send(stomp.Encode(frame)); err != nil {
		logger.WarnF("[conn-%d] Fail to send %s frame, details: %v", id, frame.Command, err)
		return false
	}
	return true
}

// SendToChannel queues a personalized MESSAGE derived from frame for every
// subscriber of channel and returns how many were accepted. A subscriber
// whose queue is full misses the message.
func (b *Broker) SendToChannel(channel string, frame stomp.Frame) int {
	delivered := 0
	for _, sub := range b.registry.Subscribers(channel) {
		message := stomp.Message(frame, channel, sub.SubscriptionID, b.messageIDs.Next())
		if b.SendToConnection(sub.ConnectionID, message) {
			delivered++
		}
	}
	b.delivered.Add(uint64(delivered))
	return delivered
}

func (b *Broker) Subscribe(connectionID int, channel, subscriptionID string) {
	b.registry.Subscribe(connectionID, channel, subscriptionID)
}

func (b *Broker) Unsubscribe(connectionID int, channel string) bool {
	return b.registry.Unsubscribe(connectionID, channel)
}

func (b *Broker) IsSubscribed(connectionID int, channel string) bool {
	return b.registry.IsSubscribed(connectionID, channel)
}

// Subscribers returns a snapshot of the subscribers of channel.
func (b *Broker) Subscribers(channel string) []Subscriber {
	return b.registry.Subscribers(channel)
}

func (b *Broker) TryLogin(username, passcode string, connectionID int) LoginStatus {
	status := b.users.TryLogin(username, passcode, connectionID)
	if status.Success() {
		b.record(audit.NewLoginEvent(username, connectionID))
	}
	return status
}

func (b *Broker) Logout(username string, connectionID int) bool {
	if !b.users.Logout(username, connectionID) {
		return false
	}
	b.record(audit.NewLogoutEvent(username, connectionID))
	return true
}

func (b *Broker) LookupUser(username string) (UserInfo, bool) {
	return b.users.Lookup(username)
}

// RecordUpload notes that username published filename to channel.
func (b *Broker) RecordUpload(username string, connectionID int, channel, filename string) {
	b.record(audit.NewUploadEvent(username, connectionID, channel, filename))
}

func (b *Broker) Stats() Stats {
	known, loggedIn := b.users.Count()
	return Stats{
		ActiveConnections: b.connections.Count(),
		Channels:          b.registry.ChannelCount(),
		Users:             known,
		LoggedInUsers:     loggedIn,
		DeliveredMessages: b.delivered.Load(),
		LastMessageID:     b.messageIDs.Last(),
	}
}

func (b *Broker) record(e audit.Event) {
	if b.recorder != nil {
		b.recorder.Record(e)
	}
}
