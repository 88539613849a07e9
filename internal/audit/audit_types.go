// Package audit records the login history and file uploads of broker users.
package audit

import (
	"context"
	"errors"
	"time"
)

const (
	EventCollectionName = "audit_events"
)

// Kind is the type of an audited event.
type Kind string

const (
	KindLogin  Kind = "login"
	KindLogout Kind = "logout"
	KindUpload Kind = "upload"
)

var ErrUsernameEmpty = errors.New("username is empty")

// Event is one entry of the audit trail.
type Event struct {
	Kind         Kind      `bson:"kind" json:"kind"`
	Username     string    `bson:"username" json:"username"`
	ConnectionID int       `bson:"connection_id" json:"connection_id"`
	Channel      string    `bson:"channel,omitempty" json:"channel,omitempty"`
	Filename     string    `bson:"filename,omitempty" json:"filename,omitempty"`
	At           time.Time `bson:"at" json:"at"`
}

// Store persists audit events.
type Store interface {
	// Save appends e to the trail of e.Username.
	Save(ctx context.Context, e Event) error

	// History returns the events of username, oldest first.
	History(ctx context.Context, username string) ([]Event, error)

	// Close releases the store.
	Close(ctx context.Context) error
}

func NewLoginEvent(username string, connectionID int) Event {
	return Event{Kind: KindLogin, Username: username, ConnectionID: connectionID, At: time.Now()}
}

func NewLogoutEvent(username string, connectionID int) Event {
	return Event{Kind: KindLogout, Username: username, ConnectionID: connectionID, At: time.Now()}
}

func NewUploadEvent(username string, connectionID int, channel, filename string) Event {
	return Event{
		Kind:         KindUpload,
		Username:     username,
		ConnectionID: connectionID,
		Channel:      channel,
		Filename:     filename,
		At:           time.Now(),
	}
}
