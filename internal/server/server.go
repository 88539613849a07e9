// Package server accepts STOMP clients over TCP and WebSocket and drives
// their protocol sessions.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/broker"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

type Options struct {
	Addr           string
	Mode           string
	Workers        int
	MaxConnections int
	ReadBufferSize int
	WriteTimeout   time.Duration
	SendQueueSize  int
	MaxFrameSize   int
	AcceptRate     int
	AcceptBurst    int
}

func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		Addr:           cfg.Addr(),
		Mode:           cfg.Mode,
		Workers:        cfg.Workers,
		MaxConnections: cfg.MaxConnections,
		ReadBufferSize: cfg.ReadBufferSize,
		WriteTimeout:   cfg.WriteTimeoutDuration(),
		SendQueueSize:  cfg.SendQueueSize,
		MaxFrameSize:   cfg.MaxFrameSize,
		AcceptRate:     cfg.AcceptRate,
		AcceptBurst:    cfg.AcceptBurst,
	}
}

type Server struct {
	opts    Options
	broker  *broker.Broker
	sem     chan struct{}
	limiter *rate.Limiter
	nextID  atomic.Int64

	// live holds the open handlers so shutdown can close their sockets.
	live    sync.Map
	closing atomic.Bool
	wg      sync.WaitGroup

	addrOnce sync.Once
	ready    chan struct{}
	addr     net.Addr
}

func New(opts Options, b *broker.Broker) *Server {
	if opts.Mode == "" {
		opts.Mode = config.ModeTPC
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10000
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 4096
	}

	s := &Server{
		opts:   opts,
		broker: b,
		sem:    make(chan struct{}, opts.MaxConnections),
		ready:  make(chan struct{}),
	}
	if opts.AcceptRate > 0 {
		burst := opts.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), burst)
	}
	return s
}

// NextConnectionID returns a connection id unique across TCP and WebSocket
// clients. Ids start at 1.
func (s *Server) NextConnectionID() int {
	return int(s.nextID.Add(1))
}

// Addr blocks until the listener is bound and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.addr
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until ctx is cancelled or accepting fails,
// then closes every client and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.addrOnce.Do(func() {
		s.addr = ln.Addr()
		close(s.ready)
	})
	logger.InfoF("STOMP Server Listen On %s (%s mode)", ln.Addr().String(), s.opts.Mode)

	var r *reactor
	if s.opts.Mode == config.ModeReactor {
		r = newReactor(s.opts.Workers)
		r.start()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.ErrorF("Server close error: %v", err)
		}
		s.closeAll()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return s.acceptLoop(gctx, ln, r)
	})

	err := g.Wait()
	s.wg.Wait()
	if r != nil {
		r.stop()
	}
	logger.InfoF("STOMP Server on %s stopped", ln.Addr().String())
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, r *reactor) error {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.WarnF("Accept connection error: %v, retrying", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			logger.ErrorF("Accept connection error: %v", err)
			return err
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		}

		id := s.NextConnectionID()
		s.wg.Add(1)
		if r != nil {
			go s.readForReactor(id, conn, r)
		} else {
			go s.handleConnection(id, conn)
		}
	}
}

func (s *Server) track(h *connectionHandler) {
	s.live.Store(h.id, h)
	if s.closing.Load() {
		h.closeTransport()
	}
}

func (s *Server) untrack(h *connectionHandler) {
	s.live.Delete(h.id)
}

// closeAll closes every live socket. Each close flushes its own queue, so
// they run in parallel.
func (s *Server) closeAll() {
	s.closing.Store(true)
	s.live.Range(func(_, value any) bool {
		go value.(*connectionHandler).closeTransport()
		return true
	})
}
