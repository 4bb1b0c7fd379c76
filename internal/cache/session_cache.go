package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// SessionCache maps session keys to user ids in Redis so the session
// middleware can skip a database roundtrip for returning clients. Entries
// expire on their own; account deletion evicts them eagerly.
type SessionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSessionCache(client *redisv9.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *SessionCache) Get(ctx context.Context, key string) (uint, bool, error) {
	raw, err := c.client.Get(ctx, c.sessionKey(key)).Result()
	if err == redisv9.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get session failed: %w", err)
	}

	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached session user id failed: %w", err)
	}
	return uint(userID), true, nil
}

func (c *SessionCache) Set(ctx context.Context, key string, userID uint) error {
	if err := c.client.Set(ctx, c.sessionKey(key), strconv.FormatUint(uint64(userID), 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (c *SessionCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (c *SessionCache) sessionKey(key string) string {
	return "account:session:" + key
}
