package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, 3, 0)

	require.NoError(t, store.Save(ctx, NewLoginEvent("joe", 1)))
	require.NoError(t, store.Save(ctx, NewUploadEvent("joe", 1, "/chat", "a.txt")))
	require.NoError(t, store.Save(ctx, NewLogoutEvent("joe", 1)))
	require.NoError(t, store.Save(ctx, NewLoginEvent("joe", 2)))

	events, err := store.History(ctx, "joe")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, KindUpload, events[0].Kind)
	assert.Equal(t, "a.txt", events[0].Filename)
	assert.Equal(t, KindLogin, events[2].Kind)
	assert.Equal(t, 2, events[2].ConnectionID)

	assert.ErrorIs(t, store.Save(ctx, Event{Kind: KindLogin}), ErrUsernameEmpty)

	events, err = store.History(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStore_EvictsLeastRecentUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, 10, time.Hour)

	require.NoError(t, store.Save(ctx, NewLoginEvent("a", 1)))
	require.NoError(t, store.Save(ctx, NewLoginEvent("b", 2)))
	require.NoError(t, store.Save(ctx, NewLoginEvent("c", 3)))

	events, err := store.History(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = store.History(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, e Event) error {
	<-b.release
	return b.MemoryStore.Save(ctx, e)
}

func TestRecorder(t *testing.T) {
	store := NewMemoryStore(16, 16, 0)
	r := NewRecorder(store, 8)

	r.Record(NewLoginEvent("joe", 1))
	r.Record(NewLogoutEvent("joe", 1))
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	r.Record(NewLoginEvent("joe", 2))
	assert.Equal(t, int64(1), r.Dropped())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{
		MemoryStore: NewMemoryStore(16, 16, 0),
		release:     make(chan struct{}),
	}
	r := NewRecorder(store, 1)

	// One event is taken by the worker, one sits in the queue.
	for i := 0; i < 10; i++ {
		r.Record(NewLoginEvent("joe", i))
	}
	assert.GreaterOrEqual(t, r.Dropped(), int64(8))

	close(store.release)
	require.NoError(t, r.Close(context.Background()))
}

func TestMongoURI(t *testing.T) {
	uri := MongoURI(config.MongoConfig{Host: "db", Port: 27017, Username: "u@x", Password: "p/w"})
	assert.Equal(t, "mongodb://u%40x:p%2Fw@db:27017/?authSource=admin", uri)
	assert.Equal(t, "mongodb://db:27017/", MongoURI(config.MongoConfig{Host: "db", Port: 27017}))
}

func TestMongoClientOptions(t *testing.T) {
	cfg := config.Default().Audit.Mongo

	opts, operationTimeout, err := mongoClientOptions("stomp-broker", cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, operationTimeout)
	require.NotNil(t, opts.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, *opts.HeartbeatInterval)
	require.NotNil(t, opts.MaxConnIdleTime)
	assert.Equal(t, 5*time.Minute, *opts.MaxConnIdleTime)

	cfg.Heartbeat = "often"
	_, _, err = mongoClientOptions("stomp-broker", cfg)
	assert.ErrorContains(t, err, "invalid heartbeat")

	cfg = config.Default().Audit.Mongo
	cfg.SocketTimeout = ""
	opts, _, err = mongoClientOptions("stomp-broker", cfg)
	require.NoError(t, err)
	assert.Nil(t, opts.SocketTimeout)
}
