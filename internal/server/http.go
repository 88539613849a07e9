package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/audit"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

// HistoryReader serves the audit trail of a user.
type HistoryReader interface {
	History(ctx context.Context, username string) ([]audit.Event, error)
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"v12.stomp", "v11.stomp"},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter exposes the WebSocket endpoint and the admin endpoints of s.
// history may be nil when auditing is disabled.
func NewRouter(s *Server, history HistoryReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.ServeWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.broker.Stats())
	})
	r.Get("/users/{username}/history", func(w http.ResponseWriter, req *http.Request) {
		if history == nil {
			http.Error(w, "audit disabled", http.StatusNotFound)
			return
		}
		events, err := history.History(req.Context(), chi.URLParam(req, "username"))
		if err != nil {
			logger.ErrorF("Fail to read audit history, details: %v", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnF("Fail to write response, details: %v", err)
	}
}

// ServeWebSocket upgrades the request and serves STOMP frames carried in
// WebSocket messages on the request goroutine. WebSocket clients count
// against the same connection limit as TCP clients.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.WarnF("Reject websocket connection from %s, connection limit reached", r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer func() { <-s.sem }()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("Fail to upgrade websocket connection, details: %v", err)
		return
	}
	if s.opts.MaxFrameSize > 0 {
		conn.SetReadLimit(int64(s.opts.MaxFrameSize))
	}

	id := s.NextConnectionID()
	h := newConnectionHandler(id, connection.NewWebSocketConnection(id, conn, s.opts.WriteTimeout, s.opts.SendQueueSize), s.broker, s.opts.MaxFrameSize)
	s.track(h)
	defer func() {
		h.release()
		s.untrack(h)
		logger.DebugF("[conn-%d] Websocket connection closed", id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				connection.HandleReadError(id, err)
			}
			return
		}
		if !h.handleChunk(data) {
			return
		}
	}
}

// ServeHTTP runs an HTTP server for handler on addr until ctx is cancelled.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoF("HTTP Server Listen On %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnF("HTTP Server shutdown error: %v", err)
		}
		return nil
	}
}
