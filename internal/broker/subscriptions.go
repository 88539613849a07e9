package broker

import "sync"

// Subscriber is one connection subscribed to a channel.
type Subscriber struct {
	ConnectionID   int
	SubscriptionID string
}

type channelSubscribers struct {
	mu          sync.RWMutex
	subscribers map[int]string
	// dead is set once the entry left the registry; writers must retry.
	dead bool
}

// Registry maps channels to their subscribers. Every channel has its own
// lock, so operations on different channels never contend.
type Registry struct {
	channels sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe records connectionID on channel under subscriptionID. A repeated
// call replaces the previous subscription id.
func (r *Registry) Subscribe(connectionID int, channel, subscriptionID string) {
	for {
		value, ok := r.channels.Load(channel)
		if !ok {
			value, _ = r.channels.LoadOrStore(channel, &channelSubscribers{subscribers: make(map[int]string)})
		}

		cs := value.(*channelSubscribers)
		cs.mu.Lock()
		if cs.dead {
			cs.mu.Unlock()
			continue
		}
		cs.subscribers[connectionID] = subscriptionID
		cs.mu.Unlock()
		return
	}
}

// Unsubscribe removes connectionID from channel. Empty channels are dropped.
// It reports whether connectionID was subscribed.
func (r *Registry) Unsubscribe(connectionID int, channel string) bool {
	value, ok := r.channels.Load(channel)
	if !ok {
		return false
	}

	cs := value.(*channelSubscribers)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, ok := cs.subscribers[connectionID]; !ok {
		return false
	}
	delete(cs.subscribers, connectionID)
	if len(cs.subscribers) == 0 && !cs.dead {
		cs.dead = true
		r.channels.CompareAndDelete(channel, cs)
	}
	return true
}

// SubscriptionID returns the subscription id of connectionID on channel.
func (r *Registry) SubscriptionID(connectionID int, channel string) (string, bool) {
	value, ok := r.channels.Load(channel)
	if !ok {
		return "", false
	}

	cs := value.(*channelSubscribers)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	id, ok := cs.subscribers[connectionID]
	return id, ok
}

func (r *Registry) IsSubscribed(connectionID int, channel string) bool {
	_, ok := r.SubscriptionID(connectionID, channel)
	return ok
}

// Subscribers returns a snapshot of the subscribers of channel.
func (r *Registry) Subscribers(channel string) []Subscriber {
	value, ok := r.channels.Load(channel)
	if !ok {
		return nil
	}

	cs := value.(*channelSubscribers)
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	result := make([]Subscriber, 0, len(cs.subscribers))
	for id, subscriptionID := range cs.subscribers {
		result = append(result, Subscriber{ConnectionID: id, SubscriptionID: subscriptionID})
	}
	return result
}

// RemoveAll unsubscribes connectionID from every channel and returns the
// channels it left.
func (r *Registry) RemoveAll(connectionID int) []string {
	var channels []string
	r.channels.Range(func(key, _ any) bool {
		channel := key.(string)
		if r.Unsubscribe(connectionID, channel) {
			channels = append(channels, channel)
		}
		return true
	})
	return channels
}

// ChannelCount returns the number of channels with at least one subscriber.
func (r *Registry) ChannelCount() int {
	n := 0
	r.channels.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
