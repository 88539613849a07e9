package audit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps the most recent events of the most recently active users.
// Users beyond size, or idle longer than ttl, are evicted.
type MemoryStore struct {
	mu          sync.Mutex
	users       *expirable.LRU[string, []Event]
	historySize int
}

// NewMemoryStore creates a store for at most size users, each with at most
// historySize events. ttl<=0 disables expiry.
func NewMemoryStore(size, historySize int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	if historySize <= 0 {
		historySize = 100
	}
	if ttl < 0 {
		ttl = 0
	}
	return &MemoryStore{
		users:       expirable.NewLRU[string, []Event](size, nil, ttl),
		historySize: historySize,
	}
}

func (ms *MemoryStore) Save(_ context.Context, e Event) error {
	if e.Username == "" {
		return ErrUsernameEmpty
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	events, _ := ms.users.Get(e.Username)
	events = append(events, e)
	if over := len(events) - ms.historySize; over > 0 {
		events = append([]Event(nil), events[over:]...)
	}
	ms.users.Add(e.Username, events)
	return nil
}

func (ms *MemoryStore) History(_ context.Context, username string) ([]Event, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	events, ok := ms.users.Peek(username)
	if !ok {
		return nil, nil
	}
	return append([]Event(nil), events...), nil
}

func (ms *MemoryStore) Close(_ context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.users.Purge()
	return nil
}
