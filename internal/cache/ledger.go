package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"marketplace-bff/internal/models"
)

const promptTTL = 30 * 24 * time.Hour

// FirstPrompt records that principal has been asked to complete their profile
// and reports whether this was the first time.
func (c *Client) FirstPrompt(ctx context.Context, principal string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, namespace+"prompt:"+principal, 1, promptTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx prompt: %w", err)
	}
	return ok, nil
}

// OwnedProfile returns the entrepreneur profile id owned by principal.
func (c *Client) OwnedProfile(ctx context.Context, principal string) (models.ID, bool, error) {
	raw, err := c.rdb.Get(ctx, namespace+"owner:"+principal).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get owner: %w", err)
	}
	id, err := models.ParseID(raw)
	if err != nil {
		return 0, false, fmt.Errorf("owner index for %s: %w", principal, err)
	}
	return id, true, nil
}

func (c *Client) RememberOwnedProfile(ctx context.Context, principal string, id models.ID) error {
	if err := c.rdb.Set(ctx, namespace+"owner:"+principal, id.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis set owner: %w", err)
	}
	return nil
}
