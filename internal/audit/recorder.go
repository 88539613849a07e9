package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

// Recorder hands events to a Store from a single background goroutine so
// that callers on the protocol path never wait for storage.
type Recorder struct {
	store   Store
	ch      chan Event
	wg      sync.WaitGroup
	closed  atomic.Bool
	mu      sync.RWMutex
	dropped atomic.Int64
}

// NewRecorder starts a recorder with a queue of queueSize events.
func NewRecorder(store Store, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		store: store,
		ch:    make(chan Event, queueSize),
	}
	r.wg.Add(1)
	go r.startWorker()
	return r
}

func (r *Recorder) startWorker() {
	defer r.wg.Done()
	for e := range r.ch {
		if err := r.store.Save(context.Background(), e); err != nil {
			logger.WarnF("Fail to save %s event of %s, details: %v", e.Kind, e.Username, err)
		}
	}
}

// Record queues e. When the queue is full or the recorder is closed the
// event is dropped.
func (r *Recorder) Record(e Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- e:
	default:
		r.dropped.Add(1)
		logger.WarnF("Audit queue is full, %s event of %s dropped", e.Kind, e.Username)
	}
}

// History reads the trail of username from the store.
func (r *Recorder) History(ctx context.Context, username string) ([]Event, error) {
	return r.store.History(ctx, username)
}

// Dropped returns the number of events that were not queued.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events, writes the queued ones and closes the store.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	close(r.ch)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.store.Close(ctx)
}

// Invoke closes the recorder during shutdown.
func (r *Recorder) Invoke(ctx context.Context) error {
	return r.Close(ctx)
}
