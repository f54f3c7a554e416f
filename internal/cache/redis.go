package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const namespace = "mbff:"

type Options struct {
	Addr     string
	Password string
	DB       int

	RateLimit  int
	RateWindow time.Duration
}

// Client wraps go-redis for the gateway's shared state: the query store, the
// rate limiter, the profile prompt ledger and the owner index.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger

	rateLimit  int
	rateWindow time.Duration
}

func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return newClient(rdb, opts, logger), nil
}

func newClient(rdb *redis.Client, opts Options, logger *slog.Logger) *Client {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	return &Client{
		rdb:        rdb,
		logger:     logger.With("component", "redis"),
		rateLimit:  opts.RateLimit,
		rateWindow: opts.RateWindow,
	}
}

// IsRateLimited counts a hit for key. The window restarts on every hit, so a
// caller has to stay quiet for a full window to be let through again. Redis
// failures fail open.
func (c *Client) IsRateLimited(ctx context.Context, key string) bool {
	redisKey := namespace + "ratelimit:" + key

	pipe := c.rdb.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, c.rateWindow)
	_, err := pipe.Exec(ctx)

	if err != nil {
		c.logger.Warn("Rate limit check failed", "key", key, "error", err)
		return false
	}

	return incr.Val() > int64(c.rateLimit)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
