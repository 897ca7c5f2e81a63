package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/divinevideo/divine-rest-gateway/logging"
)

// setStatusScript enforces the publish-status monotonicity invariant (P5):
// once a key holds status "published", no later SetStatus call may
// overwrite it. Mirrors the idempotent-write-via-Lua-script shape used for
// commit markers in the pack's rate-limiter persistence layer, repurposed
// here for a monotonic-once-published guard instead of a dedup marker.
const setStatusScript = `
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and decoded and decoded.status == 'published' then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return 1
`

// RedisStore backs Store with a real Redis deployment (github.com/redis/go-redis/v9),
// standing in for the KV binding spec.md treats as an external collaborator.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetQuery(ctx context.Context, identity string) (*CachedQuery, int64, error) {
	raw, err := s.client.Get(ctx, queryKey(identity)).Bytes()
	if err == redis.Nil {
		return nil, 0, nil
	}
	if err != nil {
		logging.DebugMethod("cachestore", "GetQuery", "redis get failed for %s: %v", identity, err)
		return nil, 0, ErrStoreUnavailable
	}
	var q CachedQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, 0, fmt.Errorf("decode cached query %s: %w", identity, err)
	}
	return &q, q.Age(time.Now()), nil
}

func (s *RedisStore) PutQuery(ctx context.Context, identity string, q *CachedQuery, ttl time.Duration) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, queryKey(identity), raw, ttl).Err(); err != nil {
		logging.DebugMethod("cachestore", "PutQuery", "redis set failed for %s: %v", identity, err)
		return ErrStoreUnavailable
	}
	return nil
}

func (s *RedisStore) GetStatus(ctx context.Context, eventID string) (*PublishStatus, error) {
	raw, err := s.client.Get(ctx, statusKey(eventID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		logging.DebugMethod("cachestore", "GetStatus", "redis get failed for %s: %v", eventID, err)
		return nil, ErrStoreUnavailable
	}
	var st PublishStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode publish status %s: %w", eventID, err)
	}
	return &st, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, eventID string, status *PublishStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	res, err := s.client.Eval(ctx, setStatusScript, []string{statusKey(eventID)}, string(raw), int(StatusTTL.Seconds())).Result()
	if err != nil {
		logging.DebugMethod("cachestore", "SetStatus", "redis eval failed for %s: %v", eventID, err)
		return ErrStoreUnavailable
	}
	applied, _ := res.(int64)
	if applied == 0 {
		logging.DebugMethod("cachestore", "SetStatus", "status for %s already published, ignoring overwrite to %q", eventID, status.Status)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
