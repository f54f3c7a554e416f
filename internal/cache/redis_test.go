package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-bff/internal/logging"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/query"
)

func newTestClient(t *testing.T, opts Options) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	opts.Addr = mr.Addr()
	c, err := NewClient(opts, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	_, err := NewClient(Options{Addr: "127.0.0.1:1"}, logging.Discard())
	assert.Error(t, err)
}

func TestIsRateLimited(t *testing.T) {
	c, mr := newTestClient(t, Options{RateLimit: 2, RateWindow: time.Minute})
	ctx := context.Background()

	assert.False(t, c.IsRateLimited(ctx, "inquiry:10.0.0.1"))
	assert.False(t, c.IsRateLimited(ctx, "inquiry:10.0.0.1"))
	assert.True(t, c.IsRateLimited(ctx, "inquiry:10.0.0.1"))
	assert.False(t, c.IsRateLimited(ctx, "inquiry:10.0.0.2"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, c.IsRateLimited(ctx, "inquiry:10.0.0.1"))
}

func TestIsRateLimitedFailsOpen(t *testing.T) {
	c, mr := newTestClient(t, Options{RateLimit: 1})
	mr.Close()

	assert.False(t, c.IsRateLimited(context.Background(), "ip"))
	assert.False(t, c.IsRateLimited(context.Background(), "ip"))
}

func TestQueryStore(t *testing.T) {
	c, mr := newTestClient(t, Options{})
	store := c.QueryStore(time.Minute)
	ctx := context.Background()

	for _, k := range []query.Key{"products:category:1", "products:entrepreneur:2", "product:1", "productsX"} {
		v, err := store.Version(ctx, k)
		require.NoError(t, err)
		stored, err := store.SetIfVersion(ctx, k, v, []byte(`"v"`))
		require.NoError(t, err)
		require.True(t, stored)
	}

	data, ok, err := store.Get(ctx, "product:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"v"`, string(data))

	n, err := store.DeletePrefix(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err = store.Get(ctx, "products:category:1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "productsX")
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, _ = store.Get(ctx, "product:1")
	assert.False(t, ok)
}

func TestQueryStoreBacksCache(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	ctx := context.Background()

	a := query.New(query.Config{Store: c.QueryStore(time.Minute)}, logging.Discard())
	b := query.New(query.Config{Store: c.QueryStore(time.Minute)}, logging.Discard())
	key := query.Build("categories")

	calls := 0
	fetch := func(context.Context) (any, error) {
		calls++
		return []string{"food"}, nil
	}

	a.Query(ctx, key, query.Options{}, fetch)
	b.Query(ctx, key, query.Options{}, fetch)
	assert.Equal(t, 1, calls)

	b.Invalidate(ctx, key)
	a.Query(ctx, key, query.Options{}, fetch)
	assert.Equal(t, 2, calls)
}

func TestQueryStoreRejectsWriteAfterInvalidation(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	store := c.QueryStore(time.Minute)
	ctx := context.Background()
	key := query.Key("products:entrepreneur:0")

	before, err := store.Version(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, query.Version{0, 0, 0}, before)

	_, err = store.DeletePrefix(ctx, "products:entrepreneur")
	require.NoError(t, err)

	stored, err := store.SetIfVersion(ctx, key, before, []byte(`"old"`))
	require.NoError(t, err)
	assert.False(t, stored)
	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := store.Version(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, query.Version{0, 1, 0}, after)
	stored, err = store.SetIfVersion(ctx, key, after, []byte(`"new"`))
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestSlowInstanceCannotRestoreInvalidatedValue(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	ctx := context.Background()

	slow := query.New(query.Config{Store: c.QueryStore(time.Minute)}, logging.Discard())
	fast := query.New(query.Config{Store: c.QueryStore(time.Minute)}, logging.Discard())
	t.Cleanup(slow.Wait)
	key := query.Build("product", query.ID(models.ID(7).Ptr()))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan query.Snapshot)
	go func() {
		done <- slow.Query(ctx, key, query.Options{}, func(context.Context) (any, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()

	<-started
	fast.Invalidate(ctx, query.Prefix("product", "7"))
	close(release)
	<-done

	snap := fast.Query(ctx, key, query.Options{}, func(context.Context) (any, error) { return "new", nil })
	assert.Equal(t, `"new"`, string(snap.Data))
	snap = slow.Query(ctx, key, query.Options{}, func(context.Context) (any, error) { return "unused", nil })
	assert.Equal(t, `"new"`, string(snap.Data))
}

func TestFirstPrompt(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	ctx := context.Background()

	first, err := c.FirstPrompt(ctx, "aaaaa-aa")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.FirstPrompt(ctx, "aaaaa-aa")
	require.NoError(t, err)
	assert.False(t, again)
}

func TestOwnerIndex(t *testing.T) {
	c, mr := newTestClient(t, Options{})
	ctx := context.Background()

	_, ok, err := c.OwnedProfile(ctx, "aaaaa-aa")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.RememberOwnedProfile(ctx, "aaaaa-aa", 7))
	id, ok, err := c.OwnedProfile(ctx, "aaaaa-aa")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.ID(7), id)

	require.NoError(t, mr.Set(namespace+"owner:bad", "x"))
	_, _, err = c.OwnedProfile(ctx, "bad")
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
