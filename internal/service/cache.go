package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"payment-limiter/internal/model"
)

// PaymentCache tracks payment ids that are in flight or already settled, so
// the same payment is never charged twice.
type PaymentCache interface {
	// Reserve claims id. It returns false when id is already reserved or
	// settled.
	Reserve(ctx context.Context, id string) (bool, error)
	MarkSucceeded(ctx context.Context, id string) error
	// Release forgets id so the payment can be attempted again.
	Release(ctx context.Context, id string) error
}

type RedisCache struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: rc, Prefix: "payment:", TTL: ttl}
}

func (c *RedisCache) Reserve(ctx context.Context, id string) (bool, error) {
	ok, err := c.Client.SetNX(ctx, c.Prefix+id, string(model.StatusPending), c.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", id, err)
	}
	return ok, nil
}

func (c *RedisCache) MarkSucceeded(ctx context.Context, id string) error {
	if err := c.Client.Set(ctx, c.Prefix+id, string(model.StatusSuccess), c.TTL).Err(); err != nil {
		return fmt.Errorf("mark %s succeeded: %w", id, err)
	}
	return nil
}

func (c *RedisCache) Release(ctx context.Context, id string) error {
	if err := c.Client.Del(ctx, c.Prefix+id).Err(); err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}

// MemoryCache is the in-process PaymentCache. Entries never expire.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]model.PaymentStatus
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]model.PaymentStatus)}
}

func (c *MemoryCache) Reserve(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return false, nil
	}
	c.entries[id] = model.StatusPending
	return true, nil
}

func (c *MemoryCache) MarkSucceeded(_ context.Context, id string) error {
	c.mu.Lock()
	c.entries[id] = model.StatusSuccess
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Release(_ context.Context, id string) error {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}
