// Package query caches reads from the marketplace service by query key.
//
// A Key is an operation name plus its parameters. Concurrent reads of the same
// key share one in-flight fetch. Entries stay fresh until a mutation
// invalidates them; there is no polling and no time-based staleness. Fetches
// are never cancelled: a caller that stops waiting simply ignores the result,
// which still lands in the cache.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/resilience"
	"marketplace-bff/internal/telemetry"
)

type Status int

const (
	StatusIdle Status = iota
	StatusDisabled
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Snapshot is the observable state of one key.
type Snapshot struct {
	Key        Key
	Data       []byte
	Status     Status
	Err        error
	IsLoading  bool
	IsFetching bool
	IsFetched  bool
	UpdatedAt  time.Time

	fetched bool
}

// Fetcher loads the value for a key. The returned value is stored as JSON.
type Fetcher func(ctx context.Context) (any, error)

type Options struct {
	// NoRetry disables retries for queries whose failure is a valid
	// terminal state.
	NoRetry bool
}

type Config struct {
	Store        Store
	Retry        int
	RetryDelay   time.Duration
	FetchTimeout time.Duration
	// Ready gates every fetch. While it reports false, queries are disabled.
	Ready func() bool
}

type entry struct {
	last      []byte
	err       error
	fetched   bool
	updatedAt time.Time
	gen       uint64
	inflight  bool
	subs      map[*Subscription]struct{}
}

type Cache struct {
	cfg    Config
	store  Store
	group  singleflight.Group
	logger *slog.Logger

	mu      sync.Mutex
	entries map[Key]*entry

	bg sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Cache{
		cfg:     cfg,
		store:   cfg.Store,
		logger:  logger.With("component", "query"),
		entries: make(map[Key]*entry),
	}
}

func (c *Cache) ready() bool {
	return c.cfg.Ready == nil || c.cfg.Ready()
}

// Query returns the cached value for key, fetching it when absent or
// invalidated. Disabled keys and an unready service yield StatusDisabled
// without calling fetch.
func (c *Cache) Query(ctx context.Context, key Key, opts Options, fetch Fetcher) Snapshot {
	op := key.Op()
	if !key.Enabled() || !c.ready() {
		telemetry.QueryLookups.WithLabelValues(op, "disabled").Inc()
		return Snapshot{Key: key, Status: StatusDisabled}
	}

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Query store read failed", "key", key, "error", err)
	}
	if ok {
		telemetry.QueryLookups.WithLabelValues(op, "hit").Inc()
		c.mu.Lock()
		e := c.entryLocked(key)
		snap := Snapshot{
			Key:        key,
			Data:       data,
			Status:     StatusSuccess,
			IsFetching: e.inflight,
			IsFetched:  true,
			UpdatedAt:  e.updatedAt,
		}
		c.mu.Unlock()
		return snap
	}

	telemetry.QueryLookups.WithLabelValues(op, "miss").Inc()
	return c.fetch(ctx, key, opts, fetch)
}

// Peek reports the current state of key without fetching.
func (c *Cache) Peek(ctx context.Context, key Key) Snapshot {
	if !key.Enabled() {
		return Snapshot{Key: key, Status: StatusDisabled}
	}

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Query store read failed", "key", key, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		if ok {
			return Snapshot{Key: key, Data: data, Status: StatusSuccess, IsFetched: true}
		}
		return Snapshot{Key: key, Status: StatusIdle}
	}

	snap := snapshotOf(key, e)
	if ok {
		snap.Data = data
		snap.IsLoading = false
		if snap.Err == nil {
			snap.Status = StatusSuccess
		}
	}
	return snap
}

func (c *Cache) fetch(ctx context.Context, key Key, opts Options, fn Fetcher) Snapshot {
	c.mu.Lock()
	e := c.entryLocked(key)
	gen := e.gen
	if e.inflight {
		telemetry.QueryDeduplicated.WithLabelValues(key.Op()).Inc()
	}
	e.inflight = true
	c.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(key)+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return c.run(fetchCtx, key, gen, opts, fn)
	})

	select {
	case res := <-ch:
		return c.result(key, res.Val, res.Err)
	case <-ctx.Done():
		c.mu.Lock()
		snap := snapshotOf(key, c.entryLocked(key))
		c.mu.Unlock()
		snap.Err = ctx.Err()
		return snap
	}
}

// run performs one (possibly retried) fetch for generation gen of key. Only a
// result for the current generation is stored, and only if the store has not
// seen an invalidation of key since the fetch began.
func (c *Cache) run(ctx context.Context, key Key, gen uint64, opts Options, fn Fetcher) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	version, verr := c.store.Version(ctx, key)
	if verr != nil {
		c.logger.Warn("Query store version read failed", "key", key, "error", verr)
	}

	attempts := 1
	if !opts.NoRetry {
		attempts += c.cfg.Retry
	}

	op := key.Op()
	start := time.Now()

	var data []byte
	err := resilience.Retry(ctx, attempts, c.cfg.RetryDelay, func() error {
		v, err := fn(ctx)
		if err != nil {
			if apperr.IsNotFound(err) || apperr.IsNotReady(err) || apperr.IsValidation(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("encode %s: %w", key, err))
		}
		data = b
		return nil
	})

	telemetry.QueryFetchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	telemetry.QueryFetches.WithLabelValues(op, fetchStatus(err)).Inc()

	if err != nil && !apperr.IsNotReady(err) {
		c.logger.Warn("Query fetch failed", "key", key, "error", err)
	}

	// Invalidated in the store by another instance after this fetch began.
	superseded := false
	if err == nil && verr == nil && c.currentGen(key, gen) {
		stored, serr := c.store.SetIfVersion(ctx, key, version, data)
		switch {
		case serr != nil:
			c.logger.Warn("Query store write failed", "key", key, "error", serr)
		case !stored:
			c.logger.Debug("Discarding superseded query result", "key", key)
			superseded = true
		}
	}

	var resubscribe *Subscription

	c.mu.Lock()
	e := c.entryLocked(key)
	if e.gen == gen {
		e.inflight = false
		switch {
		case superseded:
			e.gen++
			for s := range e.subs {
				resubscribe = s
				break
			}
		case err == nil:
			e.last = data
			e.err = nil
			e.fetched = true
			e.updatedAt = time.Now()
		case apperr.IsNotReady(err):
		default:
			e.err = err
			e.fetched = true
		}
		if !superseded {
			snap := snapshotOf(key, e)
			snap.fetched = true
			if apperr.IsNotReady(err) {
				snap.Status = StatusDisabled
			}
			for s := range e.subs {
				s.deliver(snap)
			}
		}
	}
	c.mu.Unlock()

	if resubscribe != nil {
		c.refetch(resubscribe, false)
	}

	return data, err
}

func (c *Cache) currentGen(key Key, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryLocked(key).gen == gen
}

func (c *Cache) result(key Key, val any, err error) Snapshot {
	if apperr.IsNotReady(err) {
		return Snapshot{Key: key, Status: StatusDisabled, fetched: true}
	}

	c.mu.Lock()
	snap := snapshotOf(key, c.entryLocked(key))
	c.mu.Unlock()

	snap.fetched = true
	snap.IsFetched = true
	snap.IsLoading = false
	if err != nil {
		snap.Status = StatusError
		snap.Err = err
		return snap
	}
	snap.Data, _ = val.([]byte)
	snap.Status = StatusSuccess
	snap.Err = nil
	return snap
}

// Invalidate marks every entry under the given prefixes as stale, drops it
// from the store and refetches keys that have subscribers. It returns the
// number of local entries invalidated.
func (c *Cache) Invalidate(ctx context.Context, prefixes ...Key) int {
	ctx = context.WithoutCancel(ctx)

	var refetch []*Subscription
	n := 0

	c.mu.Lock()
	for key, e := range c.entries {
		if !matchesAny(key, prefixes) {
			continue
		}
		e.gen++
		e.inflight = false
		n++
		telemetry.QueryInvalidations.WithLabelValues(key.Op()).Inc()
		for s := range e.subs {
			refetch = append(refetch, s)
			break
		}
	}
	c.mu.Unlock()

	for _, p := range prefixes {
		if _, err := c.store.DeletePrefix(ctx, p); err != nil {
			c.logger.Warn("Query store delete failed", "prefix", p, "error", err)
		}
	}

	for _, s := range refetch {
		c.refetch(s, false)
	}

	c.logger.Debug("Invalidated queries", "prefixes", prefixes, "entries", n)
	return n
}

// RefetchActive refetches every key that has a subscriber, e.g. once the
// marketplace service becomes ready.
func (c *Cache) RefetchActive() int {
	var subs []*Subscription

	c.mu.Lock()
	for key, e := range c.entries {
		if !key.Enabled() {
			continue
		}
		for s := range e.subs {
			subs = append(subs, s)
			break
		}
	}
	c.mu.Unlock()

	for _, s := range subs {
		c.refetch(s, false)
	}
	return len(subs)
}

// Wait blocks until background refetches started by the cache finish.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) refetch(s *Subscription, deliverCached bool) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		snap := c.Query(s.ctx, s.key, s.opts, s.fetch)
		if snap.fetched || !deliverCached {
			return
		}
		c.mu.Lock()
		if !s.closed {
			s.deliver(snap)
		}
		c.mu.Unlock()
	}()
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func snapshotOf(key Key, e *entry) Snapshot {
	snap := Snapshot{
		Key:        key,
		Data:       e.last,
		Err:        e.err,
		IsFetching: e.inflight,
		IsFetched:  e.fetched,
		IsLoading:  e.inflight && e.last == nil,
		UpdatedAt:  e.updatedAt,
	}
	switch {
	case e.err != nil:
		snap.Status = StatusError
	case e.last != nil:
		snap.Status = StatusSuccess
	case e.inflight:
		snap.Status = StatusLoading
	default:
		snap.Status = StatusIdle
	}
	return snap
}

func matchesAny(key Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if key.HasPrefix(p) {
			return true
		}
	}
	return false
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperr.IsNotFound(err):
		return "not_found"
	case apperr.IsNotReady(err):
		return "not_ready"
	default:
		return "error"
	}
}
