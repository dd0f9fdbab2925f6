package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eventix/eventix/config"
	"github.com/eventix/eventix/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client    *redis.Client
	eventsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, eventsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		eventsTTL: eventsTTL,
	}
}

// NewRedisCacheWithClient wires an existing client, used by tests with redismock.
func NewRedisCacheWithClient(client *redis.Client, eventsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, eventsTTL: eventsTTL}
}

func (c *RedisCache) GetEvents(ctx context.Context) ([]domain.Event, error) {
	data, err := c.client.Get(ctx, eventsKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *RedisCache) SetEvents(ctx context.Context, events []domain.Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, eventsKey(), payload, c.eventsTTL).Err()
}

func (c *RedisCache) InvalidateEvents(ctx context.Context) error {
	return c.client.Del(ctx, eventsKey()).Err()
}

// AcquireCheckoutLock limits a user to one in-flight checkout. The TTL keeps
// a crashed request from wedging the user permanently.
func (c *RedisCache) AcquireCheckoutLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, checkoutLockKey(userID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseCheckoutLock(ctx context.Context, userID string) error {
	return c.client.Del(ctx, checkoutLockKey(userID)).Err()
}

func eventsKey() string {
	return "cache:events"
}

func checkoutLockKey(userID string) string {
	return fmt.Sprintf("lock:checkout:%s", userID)
}
