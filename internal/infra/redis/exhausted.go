package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/failsafe/internal/core/domain"
)

const exhaustedKey = "exhausted_operations"

// ExhaustedOperation is handed off to external retry tooling once the
// engine has given up on an operation.
type ExhaustedOperation struct {
	OperationID string           `json:"operation_id"`
	Resource    string           `json:"resource"`
	Stage       domain.Stage     `json:"stage"`
	Kind        domain.ErrorKind `json:"kind"`
	Attempts    int              `json:"attempts"`
	FailedAt    int64            `json:"failed_at"`
}

// PushExhausted queues an exhausted operation, scored by failure time so
// the oldest is retried first.
func (c *Client) PushExhausted(ctx context.Context, op ExhaustedOperation) error {
	if op.FailedAt == 0 {
		op.FailedAt = time.Now().Unix()
	}

	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode exhausted operation: %w", err)
	}

	if err := c.rdb.ZAdd(ctx, exhaustedKey, redis.Z{
		Score:  float64(op.FailedAt),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// PopExhausted pops the oldest exhausted operation from the queue.
func (c *Client) PopExhausted(ctx context.Context) (*ExhaustedOperation, bool, error) {
	results, err := c.rdb.ZRangeWithScores(ctx, exhaustedKey, 0, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	member := results[0].Member.(string)
	var op ExhaustedOperation
	if err := json.Unmarshal([]byte(member), &op); err != nil {
		return nil, false, fmt.Errorf("invalid queue entry: %w", err)
	}

	if err := c.rdb.ZRem(ctx, exhaustedKey, member).Err(); err != nil {
		return nil, false, fmt.Errorf("zrem failed: %w", err)
	}
	return &op, true, nil
}

// CountExhausted returns the queue depth.
func (c *Client) CountExhausted(ctx context.Context) (int64, error) {
	return c.rdb.ZCard(ctx, exhaustedKey).Result()
}

// ClearExhausted empties the queue.
func (c *Client) ClearExhausted(ctx context.Context) error {
	return c.rdb.Del(ctx, exhaustedKey).Err()
}
