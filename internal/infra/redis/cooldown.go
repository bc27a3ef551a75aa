package redis

import (
	"context"
	"fmt"
	"time"
)

const cooldownPrefix = "cooldown:"

// Cooldowns is a strategy.CooldownStore shared across engine processes.
// SET NX with a TTL makes the claim atomic: of two concurrent callers, at
// most one wins.
type Cooldowns struct {
	client *Client
}

// NewCooldowns creates a redis-backed cooldown store.
func NewCooldowns(client *Client) *Cooldowns {
	return &Cooldowns{client: client}
}

// TryAcquire claims the key for the cooldown window.
func (c *Cooldowns) TryAcquire(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}

	ok, err := c.client.rdb.SetNX(ctx, cooldownPrefix+key, time.Now().Unix(), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Clear removes all cooldown claims.
func (c *Cooldowns) Clear(ctx context.Context) error {
	iter := c.client.rdb.Scan(ctx, 0, cooldownPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("del failed: %w", err)
		}
	}
	return iter.Err()
}
