// Package stomp implements the STOMP frame model and the incremental wire codec.
package stomp

// Command is the first line of a STOMP frame.
type Command string

// Client commands.
const (
	CONNECT     Command = "CONNECT"
	SEND        Command = "SEND"
	SUBSCRIBE   Command = "SUBSCRIBE"
	UNSUBSCRIBE Command = "UNSUBSCRIBE"
	DISCONNECT  Command = "DISCONNECT"
)

// Server commands.
const (
	CONNECTED Command = "CONNECTED"
	MESSAGE   Command = "MESSAGE"
	RECEIPT   Command = "RECEIPT"
	ERROR     Command = "ERROR"
)

// String returns the command as it appears on the wire.
func (c Command) String() string {
	return string(c)
}

