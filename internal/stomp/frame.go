package stomp

import (
	"bytes"
	"io"
	"strings"
)

// Frame is a single STOMP message. Frames are values; the helpers that
// change headers return a new Frame.
type Frame struct {
	Command Command
	Headers Headers
	Body    string
}

// NewFrame creates a frame with the given command, headers and body.
func NewFrame(command Command, headers Headers, body string) Frame {
	return Frame{
		Command: command,
		Headers: headers.Clone(),
		Body:    body,
	}
}

// Header returns the value of the named header or an empty string.
func (f Frame) Header(key string) string {
	return f.Headers.Value(key)
}

// Lookup returns the value of the named header and whether it was present.
func (f Frame) Lookup(key string) (string, bool) {
	return f.Headers.Get(key)
}

// WithHeader returns a copy of f with key set to value.
func (f Frame) WithHeader(key, value string) Frame {
	f.Headers = f.Headers.With(key, value)
	return f
}

// Empty reports whether f carries no command.
func (f Frame) Empty() bool {
	return f.Command == ""
}

// WriteTo writes the wire form of f to w.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(s string) error {
		n, err := io.WriteString(w, s)
		total += int64(n)
		return err
	}

	if err := write(string(f.Command) + "\n"); err != nil {
		return total, err
	}
	for _, header := range f.Headers {
		if err := write(header.Key + ":" + header.Value + "\n"); err != nil {
			return total, err
		}
	}
	if err := write("\n"); err != nil {
		return total, err
	}
	if err := write(f.Body); err != nil {
		return total, err
	}
	n, err := w.Write([]byte{Terminator})
	total += int64(n)
	return total, err
}

// Bytes returns the wire form of f.
func (f Frame) Bytes() []byte {
	buf := &bytes.Buffer{}
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

// String returns the wire form of f.
func (f Frame) String() string {
	s := &strings.Builder{}
	_, _ = f.WriteTo(s)
	return s.String()
}
