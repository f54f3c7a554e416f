package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"marketplace-bff/internal/query"
)

const (
	queryPrefix   = namespace + "query:"
	versionPrefix = namespace + "qver:"

	// versionTTL bounds how long an invalidation counter is kept. It only
	// has to outlive the slowest fetch.
	versionTTL = 24 * time.Hour
)

// setIfVersion writes KEYS[1] only when every version counter in KEYS[2..]
// still holds the value the fetch read (ARGV[3..]).
var setIfVersion = redis.NewScript(`
for i = 2, #KEYS do
	local current = tonumber(redis.call('GET', KEYS[i]) or '0')
	if current ~= tonumber(ARGV[i + 1]) then
		return 0
	end
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// QueryStore keeps query results in Redis so every gateway instance reads and
// invalidates the same entries.
type QueryStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ query.Store = (*QueryStore)(nil)

// QueryStore returns a query.Store whose entries expire after ttl. The expiry
// only bounds memory; freshness is driven by invalidation.
func (c *Client) QueryStore(ttl time.Duration) *QueryStore {
	return &QueryStore{rdb: c.rdb, ttl: ttl}
}

func (s *QueryStore) Get(ctx context.Context, key query.Key) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, queryPrefix+string(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *QueryStore) Version(ctx context.Context, key query.Key) (query.Version, error) {
	vals, err := s.rdb.MGet(ctx, versionKeys(key)...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget versions %s: %w", key, err)
	}

	v := make(query.Version, len(vals))
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis version %s: %w", key, err)
		}
		v[i] = n
	}
	return v, nil
}

func (s *QueryStore) SetIfVersion(ctx context.Context, key query.Key, v query.Version, data []byte) (bool, error) {
	vkeys := versionKeys(key)
	if len(v) != len(vkeys) {
		return false, nil
	}

	keys := append([]string{queryPrefix + string(key)}, vkeys...)
	args := make([]any, 0, len(v)+2)
	args = append(args, data, s.ttl.Milliseconds())
	for _, n := range v {
		args = append(args, n)
	}

	stored, err := setIfVersion.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return stored == 1, nil
}

// DeletePrefix bumps the version of prefix before deleting, so a fetch
// that read the old version can no longer store its result.
func (s *QueryStore) DeletePrefix(ctx context.Context, prefix query.Key) (int, error) {
	vkey := versionPrefix + string(prefix)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, versionTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr version %s: %w", prefix, err)
	}

	var keys []string

	iter := s.rdb.Scan(ctx, 0, queryPrefix+escapeGlob(string(prefix))+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := query.Key(strings.TrimPrefix(iter.Val(), queryPrefix))
		if k.HasPrefix(prefix) {
			keys = append(keys, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del %s: %w", prefix, err)
	}
	return int(n), nil
}

func versionKeys(key query.Key) []string {
	prefixes := key.Prefixes()
	keys := make([]string, len(prefixes))
	for i, p := range prefixes {
		keys[i] = versionPrefix + string(p)
	}
	return keys
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
