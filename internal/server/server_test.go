package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/audit"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/broker"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

type testClient struct {
	t       *testing.T
	conn    net.Conn
	decoder *stomp.Decoder
	pending []stomp.Frame
}

func dial(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, decoder: stomp.NewDecoder()}
}

func (c *testClient) send(command stomp.Command, body string, kv ...string) {
	c.t.Helper()
	_, err := c.conn.Write(stomp.Encode(stomp.NewFrame(command, stomp.NewHeaders(kv...), body)))
	require.NoError(c.t, err)
}

func (c *testClient) read() stomp.Frame {
	c.t.Helper()
	buf := make([]byte, 1024)
	for len(c.pending) == 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := c.conn.Read(buf)
		c.pending = append(c.pending, c.decoder.Write(buf[:n])...)
		if len(c.pending) == 0 {
			require.NoError(c.t, err)
		}
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := io.ReadAll(c.conn)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(c.t, netErr.Timeout(), "connection was not closed")
	}
}

func startServer(t *testing.T, mode string) (*Server, *broker.Broker, context.CancelFunc, <-chan error) {
	t.Helper()
	b := broker.New()
	srv := New(Options{Mode: mode, Workers: 2, MaxConnections: 16, ReadBufferSize: 16, WriteTimeout: time.Second}, b)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()
	t.Cleanup(cancel)
	return srv, b, cancel, done
}

func TestServer_Scenario(t *testing.T) {
	for _, mode := range []string{config.ModeTPC, config.ModeReactor} {
		t.Run(mode, func(t *testing.T) {
			srv, b, cancel, done := startServer(t, mode)

			joe := dial(t, srv.Addr())
			joe.send(stomp.CONNECT, "", "login", "joe", "passcode", "pw")
			connected := joe.read()
			require.Equal(t, stomp.CONNECTED, connected.Command)
			assert.Equal(t, "1.2", connected.Header("version"))

			joe.send(stomp.SUBSCRIBE, "", "destination", "/chat", "id", "0", "receipt", "s")
			require.Equal(t, "s", joe.read().Header("receipt-id"))

			ann := dial(t, srv.Addr())
			ann.send(stomp.CONNECT, "", "login", "ann", "passcode", "pw")
			require.Equal(t, stomp.CONNECTED, ann.read().Command)
			ann.send(stomp.SUBSCRIBE, "", "destination", "/chat", "id", "7")

			// Deliver one SEND in two writes.
			encoded := stomp.Encode(stomp.NewFrame(stomp.SEND, stomp.NewHeaders("destination", "/chat"), "hello"))
			_, err := ann.conn.Write(encoded[:5])
			require.NoError(t, err)
			time.Sleep(20 * time.Millisecond)
			_, err = ann.conn.Write(encoded[5:])
			require.NoError(t, err)

			message := joe.read()
			assert.Equal(t, stomp.MESSAGE, message.Command)
			assert.Equal(t, "/chat", message.Header("destination"))
			assert.Equal(t, "0", message.Header("subscription"))
			assert.Equal(t, "hello", message.Body)
			assert.Equal(t, "7", ann.read().Header("subscription"))

			joe.send(stomp.DISCONNECT, "", "receipt", "42")
			receipt := joe.read()
			assert.Equal(t, stomp.RECEIPT, receipt.Command)
			assert.Equal(t, "42", receipt.Header("receipt-id"))
			joe.expectClosed()

			require.Eventually(t, func() bool {
				info, _ := b.LookupUser("joe")
				return !info.LoggedIn && !b.IsSubscribed(1, "/chat")
			}, 5*time.Second, 10*time.Millisecond)

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("server did not stop")
			}
			ann.expectClosed()
			assert.Equal(t, 0, b.Stats().ActiveConnections)
		})
	}
}

func TestServer_ErrorClosesConnection(t *testing.T) {
	for _, mode := range []string{config.ModeTPC, config.ModeReactor} {
		t.Run(mode, func(t *testing.T) {
			srv, b, _, _ := startServer(t, mode)

			c := dial(t, srv.Addr())
			c.send(stomp.SEND, "x", "destination", "/x")
			frame := c.read()
			assert.Equal(t, stomp.ERROR, frame.Command)
			assert.Equal(t, "must be logged in", frame.Header("message"))
			c.expectClosed()

			require.Eventually(t, func() bool {
				return b.Stats().ActiveConnections == 0
			}, 5*time.Second, 10*time.Millisecond)
		})
	}
}

func TestServer_ClientDropCleansUp(t *testing.T) {
	for _, mode := range []string{config.ModeTPC, config.ModeReactor} {
		t.Run(mode, func(t *testing.T) {
			srv, b, _, _ := startServer(t, mode)

			c := dial(t, srv.Addr())
			c.send(stomp.CONNECT, "", "login", "joe", "passcode", "pw")
			require.Equal(t, stomp.CONNECTED, c.read().Command)
			c.send(stomp.SUBSCRIBE, "", "destination", "/a", "id", "1", "receipt", "r")
			require.Equal(t, stomp.RECEIPT, c.read().Command)
			require.NoError(t, c.conn.Close())

			require.Eventually(t, func() bool {
				info, _ := b.LookupUser("joe")
				return !info.LoggedIn && len(b.Subscribers("/a")) == 0
			}, 5*time.Second, 10*time.Millisecond)

			again := dial(t, srv.Addr())
			again.send(stomp.CONNECT, "", "login", "joe", "passcode", "pw")
			assert.Equal(t, stomp.CONNECTED, again.read().Command)
		})
	}
}

func TestServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(Options{Addr: ln.Addr().String()}, broker.New())
	assert.Error(t, srv.ListenAndServe(context.Background()))
}

func TestNewRouter(t *testing.T) {
	b := broker.New()
	srv := New(Options{WriteTimeout: time.Second}, b)
	store := audit.NewMemoryStore(8, 8, 0)
	require.NoError(t, store.Save(context.Background(), audit.NewLoginEvent("joe", 1)))

	ts := httptest.NewServer(NewRouter(srv, store))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/users/joe/history")
	require.NoError(t, err)
	var events []audit.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	resp.Body.Close()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindLogin, events[0].Kind)

	resp, err = http.Get(ts.URL + "/users/ann/history")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "[]\n", string(body))

	disabled := httptest.NewServer(NewRouter(srv, nil))
	defer disabled.Close()
	resp, err = http.Get(disabled.URL + "/users/joe/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket(t *testing.T) {
	b := broker.New()
	srv := New(Options{WriteTimeout: time.Second}, b)
	ts := httptest.NewServer(NewRouter(srv, nil))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	dialer := websocket.Dialer{Subprotocols: []string{"v12.stomp"}}
	ws, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "v12.stomp", resp.Header.Get("Sec-Websocket-Protocol"))

	write := func(command stomp.Command, kv ...string) {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, stomp.Encode(stomp.NewFrame(command, stomp.NewHeaders(kv...), ""))))
	}
	read := func() stomp.Frame {
		_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		frame, ok := stomp.Decode(data)
		require.True(t, ok)
		return frame
	}

	write(stomp.CONNECT, "login", "joe", "passcode", "pw")
	assert.Equal(t, stomp.CONNECTED, read().Command)
	write(stomp.SUBSCRIBE, "destination", "/ws", "id", "1")
	write(stomp.SEND, "destination", "/ws", "receipt", "m")
	message := read()
	assert.Equal(t, stomp.MESSAGE, message.Command)
	assert.Equal(t, "1", message.Header("subscription"))
	assert.Equal(t, "m", read().Header("receipt-id"))

	statsResp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	var stats broker.Stats
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
	statsResp.Body.Close()
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, 1, stats.LoggedInUsers)
	assert.Equal(t, uint64(1), stats.DeliveredMessages)

	write(stomp.DISCONNECT, "receipt", "bye")
	assert.Equal(t, "bye", read().Header("receipt-id"))
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		return b.Stats().ActiveConnections == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	srv := New(Options{MaxConnections: 1, WriteTimeout: time.Second}, broker.New())
	ts := httptest.NewServer(NewRouter(srv, nil))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	// a TCP client holds the only slot
	srv.sem <- struct{}{}
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	<-srv.sem
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Len(t, srv.sem, 1)
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return len(srv.sem) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
