package query

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/logging"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type counter struct {
	calls atomic.Int32
}

func (c *counter) fetcher(v any, err error) Fetcher {
	return func(ctx context.Context) (any, error) {
		c.calls.Add(1)
		return v, err
	}
}

func newCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	c := New(cfg, logging.Discard())
	t.Cleanup(c.Wait)
	return c
}

func decodeString(t *testing.T, snap Snapshot) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(snap.Data, &s))
	return s
}

func TestQueryDisabledNeverFetches(t *testing.T) {
	c := newCache(t, Config{})
	var cnt counter

	snap := c.Query(context.Background(), Build("product", ID(nil)), Options{}, cnt.fetcher("x", nil))

	assert.Equal(t, StatusDisabled, snap.Status)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.Data)
	assert.NoError(t, snap.Err)
	assert.Zero(t, cnt.calls.Load())
}

func TestQueryDisabledWhileNotReady(t *testing.T) {
	c := newCache(t, Config{Ready: func() bool { return false }})
	var cnt counter

	snap := c.Query(context.Background(), Build("categories"), Options{}, cnt.fetcher("x", nil))

	assert.Equal(t, StatusDisabled, snap.Status)
	assert.False(t, snap.IsLoading)
	assert.Zero(t, cnt.calls.Load())
}

func TestQueryCachesUntilInvalidated(t *testing.T) {
	c := newCache(t, Config{})
	var cnt counter
	key := Build("products", Lit("category"), ID(models.ID(3).Ptr()))

	first := c.Query(context.Background(), key, Options{}, cnt.fetcher("soap", nil))
	second := c.Query(context.Background(), key, Options{}, cnt.fetcher("soap", nil))

	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, "soap", decodeString(t, second))
	assert.True(t, second.IsFetched)
	assert.EqualValues(t, 1, cnt.calls.Load())

	assert.Equal(t, 1, c.Invalidate(context.Background(), Prefix("products")))
	c.Query(context.Background(), key, Options{}, cnt.fetcher("soap", nil))
	assert.EqualValues(t, 2, cnt.calls.Load())
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	c := newCache(t, Config{})
	key := Build("product", ID(models.ID(42).Ptr()))

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "widget", nil
	}

	before := testutil.ToFloat64(telemetry.QueryDeduplicated.WithLabelValues("product"))

	var wg sync.WaitGroup
	results := make([]Snapshot, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Query(context.Background(), key, Options{}, fetch)
		}(i)
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(telemetry.QueryDeduplicated.WithLabelValues("product")) >= before+1
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, snap := range results {
		assert.Equal(t, "widget", decodeString(t, snap))
	}
}

func TestQueryRetries(t *testing.T) {
	c := newCache(t, Config{Retry: 2})
	boom := errors.New("boom")

	var retried counter
	snap := c.Query(context.Background(), Build("categories"), Options{}, retried.fetcher(nil, boom))
	assert.Equal(t, StatusError, snap.Status)
	assert.ErrorIs(t, snap.Err, boom)
	assert.EqualValues(t, 3, retried.calls.Load())

	var noRetry counter
	c.Query(context.Background(), Build("currentUserProfile", Text("aaaaa-aa")), Options{NoRetry: true}, noRetry.fetcher(nil, boom))
	assert.EqualValues(t, 1, noRetry.calls.Load())

	var notFound counter
	snap = c.Query(context.Background(), Build("product", ID(models.ID(9).Ptr())), Options{}, notFound.fetcher(nil, apperr.NotFound("product", "9")))
	assert.True(t, apperr.IsNotFound(snap.Err))
	assert.EqualValues(t, 1, notFound.calls.Load())
}

func TestFailedRefetchKeepsPreviousData(t *testing.T) {
	c := newCache(t, Config{})
	key := Build("profile", ID(models.ID(1).Ptr()))
	ctx := context.Background()

	c.Query(ctx, key, Options{}, func(context.Context) (any, error) { return "v1", nil })
	c.Invalidate(ctx, key)

	snap := c.Query(ctx, key, Options{}, func(context.Context) (any, error) { return nil, errors.New("down") })

	assert.Equal(t, StatusError, snap.Status)
	assert.Error(t, snap.Err)
	assert.Equal(t, "v1", decodeString(t, snap))
}

func TestNotReadyFetchReportsDisabled(t *testing.T) {
	c := newCache(t, Config{})

	snap := c.Query(context.Background(), Build("categories"), Options{}, func(context.Context) (any, error) {
		return nil, apperr.NotReady("marketplace service", nil)
	})

	assert.Equal(t, StatusDisabled, snap.Status)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.IsLoading)
}

func TestCallerLeavingDoesNotCancelFetch(t *testing.T) {
	c := newCache(t, Config{})
	key := Build("categories")

	release := make(chan struct{})
	done := make(chan struct{})
	var fetchErr error
	fetch := func(ctx context.Context) (any, error) {
		<-release
		fetchErr = ctx.Err()
		close(done)
		return "seeded", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return c.Peek(context.Background(), key).IsFetching }, time.Second, time.Millisecond)
		cancel()
	}()

	snap := c.Query(ctx, key, Options{}, fetch)
	assert.ErrorIs(t, snap.Err, context.Canceled)

	close(release)
	<-done
	assert.NoError(t, fetchErr)

	require.Eventually(t, func() bool {
		return c.Peek(context.Background(), key).Status == StatusSuccess
	}, time.Second, time.Millisecond)
}

func TestInvalidationDuringFetchDiscardsResult(t *testing.T) {
	c := newCache(t, Config{})
	key := Build("products", Lit("entrepreneur"), ID(models.ID(5).Ptr()))
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			<-release
			return "old", nil
		}
		return "new", nil
	}

	first := make(chan Snapshot)
	go func() { first <- c.Query(ctx, key, Options{}, fetch) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	c.Invalidate(ctx, Prefix("products"))
	close(release)
	assert.Equal(t, "old", decodeString(t, <-first))

	snap := c.Query(ctx, key, Options{}, fetch)
	assert.Equal(t, "new", decodeString(t, snap))
	assert.EqualValues(t, 2, calls.Load())
}

// heldStore blocks the first write until released.
type heldStore struct {
	*MemoryStore
	writing chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *heldStore) SetIfVersion(ctx context.Context, key Key, v Version, data []byte) (bool, error) {
	held := false
	s.once.Do(func() { held = true })
	if held {
		close(s.writing)
		<-s.release
	}
	return s.MemoryStore.SetIfVersion(ctx, key, v, data)
}

func TestInvalidationDuringStoreWriteIsNotServed(t *testing.T) {
	store := &heldStore{MemoryStore: NewMemoryStore(), writing: make(chan struct{}), release: make(chan struct{})}
	c := newCache(t, Config{Store: store})
	key := Build("products", Lit("category"), ID(models.ID(0).Ptr()))
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return "old", nil
		}
		return "new", nil
	}

	first := make(chan Snapshot)
	go func() { first <- c.Query(ctx, key, Options{}, fetch) }()

	<-store.writing
	c.Invalidate(ctx, Prefix("products"))
	close(store.release)
	<-first

	snap := c.Query(ctx, key, Options{}, fetch)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "new", decodeString(t, snap))
	assert.EqualValues(t, 2, calls.Load())
}

func TestInvalidationFromAnotherCacheIsNotOverwritten(t *testing.T) {
	store := NewMemoryStore()
	slow := newCache(t, Config{Store: store})
	other := newCache(t, Config{Store: store})
	key := Build("product", ID(models.ID(3).Ptr()))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan Snapshot)
	go func() {
		done <- slow.Query(ctx, key, Options{}, func(context.Context) (any, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()

	<-started
	other.Invalidate(ctx, Prefix("product", "3"))
	close(release)
	<-done

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := other.Query(ctx, key, Options{}, func(context.Context) (any, error) { return "new", nil })
	assert.Equal(t, "new", decodeString(t, snap))
}

func TestSubscriptionRefetchesOnInvalidation(t *testing.T) {
	c := newCache(t, Config{})
	ctx := context.Background()

	var version atomic.Int32
	fetch := func(context.Context) (any, error) {
		return version.Add(1), nil
	}
	var otherCalls counter

	inquiries := c.Subscribe(ctx, Build("inquiries", Lit("entrepreneur"), ID(models.ID(1).Ptr())), Options{}, fetch)
	defer inquiries.Close()
	other := c.Subscribe(ctx, Build("inquiries", Lit("entrepreneur"), ID(models.ID(2).Ptr())), Options{}, otherCalls.fetcher(0, nil))
	defer other.Close()

	initial := <-inquiries.Updates()
	assert.Equal(t, "1", string(initial.Data))
	<-other.Updates()

	c.Invalidate(ctx, Prefix("inquiries", "entrepreneur", "1"))
	c.Wait()

	next := <-inquiries.Updates()
	assert.Equal(t, "2", string(next.Data))
	assert.EqualValues(t, 1, otherCalls.calls.Load())
	select {
	case snap := <-other.Updates():
		t.Fatalf("unexpected update for unrelated key: %+v", snap)
	default:
	}
}

func TestRefetchActiveAfterReadiness(t *testing.T) {
	var ready atomic.Bool
	c := newCache(t, Config{Ready: ready.Load})

	sub := c.Subscribe(context.Background(), Build("categories"), Options{}, func(context.Context) (any, error) {
		return []string{"food"}, nil
	})
	defer sub.Close()

	assert.Equal(t, StatusDisabled, (<-sub.Updates()).Status)

	ready.Store(true)
	assert.Equal(t, 1, c.RefetchActive())

	snap := <-sub.Updates()
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.JSONEq(t, `["food"]`, string(snap.Data))
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	c := newCache(t, Config{})
	sub := c.Subscribe(context.Background(), Build("categories"), Options{}, func(context.Context) (any, error) { return 1, nil })
	c.Wait()

	sub.Close()
	sub.Close()

	_, open := <-sub.Updates()
	for open {
		_, open = <-sub.Updates()
	}
	assert.Zero(t, c.RefetchActive())
}

func TestGetDecodesNullAsFetched(t *testing.T) {
	c := newCache(t, Config{})

	res := Get(context.Background(), c, Build("currentUserProfile", Text("aaaaa-aa")), Options{NoRetry: true},
		func(context.Context) (*models.UserProfile, error) { return nil, nil })

	assert.True(t, res.HasData)
	assert.Nil(t, res.Data)
	assert.True(t, res.IsFetched)
	assert.False(t, res.Disabled())
}
