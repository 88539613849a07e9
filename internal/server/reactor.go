package server

import (
	"net"
	"sync"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

type task struct {
	handler *connectionHandler
	data    []byte
	// closed marks the last task of a connection.
	closed bool
	done   func()
}

// reactor runs protocol logic on a fixed pool of workers. A connection is
// pinned to one worker so its frames are processed in order.
type reactor struct {
	queues []chan task
	wg     sync.WaitGroup
}

func newReactor(workers int) *reactor {
	r := &reactor{queues: make([]chan task, workers)}
	for i := range r.queues {
		r.queues[i] = make(chan task, 256)
	}
	return r
}

func (r *reactor) start() {
	for i, q := range r.queues {
		r.wg.Add(1)
		go r.startWorker(i, q)
	}
}

func (r *reactor) startWorker(index int, q chan task) {
	defer r.wg.Done()
	logger.DebugF("Reactor worker #%d started", index)

	// finished holds handlers whose session ended but whose socket reader
	// has not sent the closing task yet.
	finished := make(map[int]bool)
	for t := range q {
		h := t.handler
		if t.closed {
			delete(finished, h.id)
			// closing flushes the outbound queue, keep it off the worker
			go func(done func()) {
				h.release()
				if done != nil {
					done()
				}
			}(t.done)
			continue
		}
		if finished[h.id] {
			continue
		}
		if !h.handleChunk(t.data) {
			finished[h.id] = true
			go h.closeTransport()
		}
	}
}

func (r *reactor) dispatch(t task) {
	r.queues[t.handler.id%len(r.queues)] <- t
}

// stop processes the queued tasks and waits for the workers.
func (r *reactor) stop() {
	for _, q := range r.queues {
		close(q)
	}
	r.wg.Wait()
}

// readForReactor reads conn on its own goroutine and hands every chunk to
// the worker owning the connection.
func (s *Server) readForReactor(id int, conn net.Conn, r *reactor) {
	h := newConnectionHandler(id, connection.NewConnection(id, conn, s.opts.WriteTimeout, s.opts.SendQueueSize), s.broker, s.opts.MaxFrameSize)
	s.track(h)

	for {
		buf := make([]byte, s.opts.ReadBufferSize)
		n, err := conn.Read(buf)
		if n > 0 {
			r.dispatch(task{handler: h, data: buf[:n]})
		}
		if err != nil {
			connection.HandleReadError(id, err)
			break
		}
	}

	r.dispatch(task{handler: h, closed: true, done: func() {
		s.untrack(h)
		<-s.sem
		logger.DebugF("[conn-%d] Connection closed", id)
		s.wg.Done()
	}})
}
