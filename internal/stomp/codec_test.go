package stomp

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, r io.Reader) []Frame {
	t.Helper()
	d := NewDecoder()
	var frames []Frame
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		frames = append(frames, d.Write(buf[:n])...)
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
	}
}

func TestDecoder_Frames(t *testing.T) {
	type DecoderTest struct {
		Name   string
		Bytes  []byte
		Expect []Frame
	}
	tests := []DecoderTest{
		{
			Name:  "connect",
			Bytes: []byte("CONNECT\nlogin:joe\npasscode:pw\n\n\x00"),
			Expect: []Frame{
				{Command: CONNECT, Headers: NewHeaders("login", "joe", "passcode", "pw"), Body: ""},
			},
		},
		{
			Name:  "body",
			Bytes: []byte("SEND\ndestination:/chat\n\nhello\nworld\x00"),
			Expect: []Frame{
				{Command: SEND, Headers: NewHeaders("destination", "/chat"), Body: "hello\nworld"},
			},
		},
		{
			Name:  "trimmed headers and first colon split",
			Bytes: []byte("SEND\n destination : /a:b \n\n\x00"),
			Expect: []Frame{
				{Command: SEND, Headers: NewHeaders("destination", "/a:b")},
			},
		},
		{
			Name:  "no blank line",
			Bytes: []byte("DISCONNECT\x00"),
			Expect: []Frame{
				{Command: DISCONNECT},
			},
		},
		{
			Name:  "heart-beats between frames",
			Bytes: []byte("DISCONNECT\n\n\x00\n\nDISCONNECT\n\n\x00"),
			Expect: []Frame{
				{Command: DISCONNECT},
				{Command: DISCONNECT},
			},
		},
		{
			Name:  "crlf line endings",
			Bytes: []byte("SUBSCRIBE\r\nid:1\r\ndestination:/x\r\n\r\n\x00"),
			Expect: []Frame{
				{Command: SUBSCRIBE, Headers: NewHeaders("id", "1", "destination", "/x"), Body: ""},
			},
		},
		{
			Name:  "repeated header keeps first",
			Bytes: []byte("SEND\ndestination:/a\ndestination:/b\n\n\x00"),
			Expect: []Frame{
				{Command: SEND, Headers: NewHeaders("destination", "/a")},
			},
		},
		{
			Name:  "line without colon is ignored",
			Bytes: []byte("SEND\nbogus\ndestination:/a\n\n\x00"),
			Expect: []Frame{
				{Command: SEND, Headers: NewHeaders("destination", "/a")},
			},
		},
		{
			Name:   "empty terminator",
			Bytes:  []byte("\x00"),
			Expect: nil,
		},
		{
			Name:   "invalid utf-8 is dropped",
			Bytes:  []byte("SEND\n\n\xff\xfe\x00DISCONNECT\n\n\x00"),
			Expect: []Frame{{Command: DISCONNECT}},
		},
		{
			Name:   "no terminator yet",
			Bytes:  []byte("CONNECT\nlogin:joe\n"),
			Expect: nil,
		},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			chk := assert.New(t)
			frames := decodeAll(t, bytes.NewReader(test.Bytes))
			chk.Equal(test.Expect, frames)
		})
		t.Run("byte-reader "+test.Name, func(t *testing.T) {
			chk := assert.New(t)
			frames := decodeAll(t, iotest.OneByteReader(bytes.NewReader(test.Bytes)))
			chk.Equal(test.Expect, frames)
		})
		t.Run("half-reader "+test.Name, func(t *testing.T) {
			chk := assert.New(t)
			frames := decodeAll(t, iotest.HalfReader(bytes.NewReader(test.Bytes)))
			chk.Equal(test.Expect, frames)
		})
	}
}

func TestDecoder_Feed(t *testing.T) {
	d := NewDecoder()
	input := []byte("SEND\ndestination:/x\n\nhi")
	for _, b := range input {
		_, ok := d.Feed(b)
		assert.False(t, ok)
	}
	assert.Equal(t, len(input), d.Buffered())

	frame, ok := d.Feed(Terminator)
	require.True(t, ok)
	assert.Equal(t, SEND, frame.Command)
	assert.Equal(t, "/x", frame.Header(HeaderDestination))
	assert.Equal(t, "hi", frame.Body)
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_MaxFrameSize(t *testing.T) {
	d := NewDecoder()
	d.MaxFrameSize = 16

	frames := d.Write([]byte("SEND\ndestination:/a-very-long-channel-name\n\n\x00"))
	assert.Empty(t, frames)
	assert.Equal(t, 1, d.Dropped())

	frames = d.Write([]byte("DISCONNECT\n\n\x00"))
	require.Len(t, frames, 1)
	assert.Equal(t, DISCONNECT, frames[0].Command)
}

func TestEncode(t *testing.T) {
	f := Frame{
		Command: MESSAGE,
		Headers: NewHeaders("subscription", "1", "message-id", "7", "destination", "/x"),
		Body:    "hello",
	}
	assert.Equal(t, "MESSAGE\nsubscription:1\nmessage-id:7\ndestination:/x\n\nhello\x00", string(Encode(f)))

	empty := Frame{Command: RECEIPT, Headers: NewHeaders("receipt-id", "42")}
	assert.Equal(t, "RECEIPT\nreceipt-id:42\n\n\x00", string(Encode(empty)))
}

func TestRoundTrip(t *testing.T) {
	frames := []Frame{
		{Command: CONNECT, Headers: NewHeaders("login", "joe", "passcode", "p:w")},
		{Command: SEND, Headers: NewHeaders("destination", "/chat", "receipt", "9"), Body: "line1\nline2\n"},
		{Command: SEND, Headers: NewHeaders("destination", "/chat"), Body: "\n\nleading blank lines"},
		{Command: MESSAGE, Headers: NewHeaders("destination", "/x", "subscription", "0", "message-id", "1"), Body: "ünïcödé"},
		{Command: DISCONNECT},
	}
	for _, f := range frames {
		t.Run(string(f.Command), func(t *testing.T) {
			encoded := Encode(f)

			whole := NewDecoder().Write(encoded)
			require.Len(t, whole, 1)
			assertSameFrame(t, f, whole[0])

			for split := 1; split < len(encoded); split++ {
				d := NewDecoder()
				first := d.Write(encoded[:split])
				second := d.Write(encoded[split:])
				require.Empty(t, first, "split at %d", split)
				require.Len(t, second, 1, "split at %d", split)
				assertSameFrame(t, f, second[0])
			}
		})
	}
}

func assertSameFrame(t *testing.T, expect, actual Frame) {
	t.Helper()
	assert.Equal(t, expect.Command, actual.Command)
	assert.Equal(t, expect.Headers.Map(), actual.Headers.Map())
	assert.Equal(t, expect.Headers.Keys(), actual.Headers.Keys())
	assert.Equal(t, expect.Body, actual.Body)
}

func TestDecode(t *testing.T) {
	frame, ok := Decode([]byte("RECEIPT\nreceipt-id:5\n\n\x00"))
	require.True(t, ok)
	assert.Equal(t, RECEIPT, frame.Command)
	assert.Equal(t, "5", frame.Header(HeaderReceiptID))
	assert.Empty(t, frame.Body)

	_, ok = Decode([]byte{Terminator})
	assert.False(t, ok)
}
