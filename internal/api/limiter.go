package api

import (
	"context"
	"sync"
	"time"
)

// RateLimiter counts a hit for key and reports whether it is over the limit.
// cache.Client implements it on Redis.
type RateLimiter interface {
	IsRateLimited(ctx context.Context, key string) bool
}

// MemoryLimiter is the single-instance fallback used when Redis is not
// configured. It mirrors the Redis limiter: the window restarts on each hit.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string]*window
}

type window struct {
	count   int
	expires time.Time
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = time.Minute
	}
	return &MemoryLimiter{
		limit:  limit,
		window: period,
		now:    time.Now,
		hits:   make(map[string]*window),
	}
}

func (m *MemoryLimiter) IsRateLimited(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.hits[key]
	if !ok || now.After(w.expires) {
		w = &window{}
		m.hits[key] = w
	}
	w.count++
	w.expires = now.Add(m.window)

	if len(m.hits) > 10000 {
		for k, v := range m.hits {
			if now.After(v.expires) {
				delete(m.hits, k)
			}
		}
	}
	return w.count > m.limit
}
