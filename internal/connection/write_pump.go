package connection

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the outbound queue length used when none is given.
const DefaultQueueSize = 256

// defaultFlushTimeout bounds Close when write deadlines are disabled.
const defaultFlushTimeout = time.Second

// ErrSendQueueFull is returned by Send when the client is not draining its
// outbound queue fast enough. The frame is dropped.
var ErrSendQueueFull = errors.New("send queue full")

// writePump owns the outbound queue of one client. A single goroutine drains
// it, so a slow reader only ever blocks its own writer.
type writePump struct {
	queue        chan []byte
	write        func([]byte) error
	flushTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	broken atomic.Bool
	done   chan struct{}
}

func newWritePump(queueSize int, writeTimeout time.Duration, write func([]byte) error) *writePump {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	flushTimeout := writeTimeout
	if flushTimeout <= 0 {
		flushTimeout = defaultFlushTimeout
	}
	p := &writePump{
		queue:        make(chan []byte, queueSize),
		write:        write,
		flushTimeout: flushTimeout,
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *writePump) run() {
	defer close(p.done)
	for data := range p.queue {
		// after a failed write the rest of the queue is discarded
		if p.broken.Load() {
			continue
		}
		if err := p.write(data); err != nil {
			p.broken.Store(true)
		}
	}
}

// enqueue never blocks. data must not be modified afterwards.
func (p *writePump) enqueue(data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.broken.Load() {
		return ErrConnectionClosed
	}
	select {
	case p.queue <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// shutdown stops accepting frames and waits up to flushTimeout for the queue
// to drain. It must be called once.
func (p *writePump) shutdown() {
	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	timer := time.NewTimer(p.flushTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	}
}

// wait blocks until the writer goroutine has exited.
func (p *writePump) wait() {
	<-p.done
}

