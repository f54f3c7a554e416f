package query

import (
	"context"
)

// Subscription observes one key. Every completed fetch of the key, including
// refetches triggered by invalidation, is delivered on Updates. Only the
// latest snapshot is kept when the reader falls behind.
type Subscription struct {
	cache   *Cache
	key     Key
	ctx     context.Context
	opts    Options
	fetch   Fetcher
	updates chan Snapshot
	closed  bool
}

// Subscribe registers interest in key and starts an initial fetch in the
// background. ctx supplies request-scoped values to later refetches; its
// cancellation is ignored.
func (c *Cache) Subscribe(ctx context.Context, key Key, opts Options, fetch Fetcher) *Subscription {
	s := &Subscription{
		cache:   c,
		key:     key,
		ctx:     context.WithoutCancel(ctx),
		opts:    opts,
		fetch:   fetch,
		updates: make(chan Snapshot, 1),
	}

	c.mu.Lock()
	e := c.entryLocked(key)
	if e.subs == nil {
		e.subs = make(map[*Subscription]struct{})
	}
	e.subs[s] = struct{}{}
	c.mu.Unlock()

	c.refetch(s, true)
	return s
}

func (s *Subscription) Key() Key {
	return s.key
}

func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close detaches the subscription and closes Updates. In-flight fetches are
// left to finish.
func (s *Subscription) Close() {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if e, ok := c.entries[s.key]; ok {
		delete(e.subs, s)
	}
	close(s.updates)
}

// deliver replaces any unread snapshot with snap. Callers hold cache.mu.
func (s *Subscription) deliver(snap Snapshot) {
	select {
	case s.updates <- snap:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}
