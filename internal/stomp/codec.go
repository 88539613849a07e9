package stomp

import (
	"strings"
	"unicode/utf8"
)

// Terminator ends every frame on the wire.
const Terminator byte = 0x00

// initialBufferSize is the starting capacity of the decoder accumulator.
const initialBufferSize = 1 << 10

// Decoder turns a byte stream into frames. It keeps the bytes of the frame
// being received between calls, so input may be split at any position.
//
// A Decoder belongs to one connection and is not safe for concurrent use.
type Decoder struct {
	// MaxFrameSize>0 bounds the bytes accumulated for one frame. A frame that
	// grows past it is discarded up to the next terminator.
	MaxFrameSize int

	buf      []byte
	overflow bool
	dropped  int
}

// NewDecoder returns a Decoder with no frame size limit.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, initialBufferSize)}
}

// Feed consumes one byte. It returns a frame and true when b completes one.
func (d *Decoder) Feed(b byte) (Frame, bool) {
	if b != Terminator {
		d.push(b)
		return Frame{}, false
	}

	if d.overflow {
		d.reset()
		d.dropped++
		return Frame{}, false
	}

	frame, ok := parseFrame(d.buf)
	d.reset()
	if !ok {
		d.dropped++
	}
	return frame, ok
}

// Write consumes a chunk of bytes and returns every frame it completes, in
// order. It never fails; malformed frames are dropped.
func (d *Decoder) Write(p []byte) []Frame {
	var frames []Frame
	for _, b := range p {
		if frame, ok := d.Feed(b); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Buffered returns the number of bytes waiting for a terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Dropped returns how many terminated frames were discarded as malformed or
// oversize.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) push(b byte) {
	if d.overflow {
		return
	}
	if d.MaxFrameSize > 0 && len(d.buf) >= d.MaxFrameSize {
		d.overflow = true
		d.buf = d.buf[:0]
		return
	}
	d.buf = append(d.buf, b)
}

func (d *Decoder) reset() {
	d.overflow = false
	if cap(d.buf) > 64*initialBufferSize {
		d.buf = make([]byte, 0, initialBufferSize)
		return
	}
	d.buf = d.buf[:0]
}

// Encode returns the wire form of f.
func Encode(f Frame) []byte {
	return f.Bytes()
}

// Decode parses one complete frame. A trailing terminator is ignored.
func Decode(data []byte) (Frame, bool) {
	if n := len(data); n > 0 && data[n-1] == Terminator {
		data = data[:n-1]
	}
	return parseFrame(data)
}

// parseFrame splits raw into command, headers and body. Lines before the
// command that are empty are heart-beats and are skipped.
func parseFrame(raw []byte) (Frame, bool) {
	if len(raw) == 0 || !utf8.Valid(raw) {
		return Frame{}, false
	}

	text := strings.TrimLeft(string(raw), "\r\n")
	if text == "" {
		return Frame{}, false
	}

	lines := strings.Split(text, "\n")
	command := strings.TrimRight(lines[0], "\r")
	if command == "" {
		return Frame{}, false
	}

	frame := Frame{Command: Command(command)}

	i := 1
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || frame.Headers.Has(key) {
			// Repeated headers: the first occurrence wins.
			continue
		}
		frame.Headers = append(frame.Headers, Header{Key: key, Value: strings.TrimSpace(value)})
	}

	if i+1 < len(lines) {
		frame.Body = strings.Join(lines[i+1:], "\n")
	}

	return frame, true
}
