package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/divinevideo/divine-rest-gateway/gwerrors"
)

// Queue is the host-provided queue binding spec.md section 4.F leaves
// abstract, realized here concretely with a Redis list so the same Redis
// deployment backs both the cache store and the publish queue.
type Queue interface {
	Push(ctx context.Context, job Job) error
	// Pop blocks up to timeout for a job, returning (nil, nil) on an empty
	// timeout rather than an error.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
}

const queueKey = "publish:queue"

// RedisQueue implements Queue with RPUSH/BLPOP on a single list key.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, queueKey, raw).Err(); err != nil {
		return fmt.Errorf("%w: %v", gwerrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrStoreUnavailable, err)
	}
	// BLPop returns [key, value] on success.
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
