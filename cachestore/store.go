package cachestore

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned by Store implementations when the
// underlying transport (Redis, in this gateway) cannot be reached. Callers
// follow spec.md section 4.B's policy: a read failure is a cache miss, a
// write failure is logged and non-fatal.
var ErrStoreUnavailable = errors.New("store_unavailable")

// Store is the cache abstraction consumed by query.Coordinator and the
// publish package's Enqueuer and Consumer. It stands in for the "KV binding" spec.md treats as an
// external collaborator, backed here concretely by Redis (see RedisStore).
type Store interface {
	GetQuery(ctx context.Context, identity string) (*CachedQuery, int64, error)
	PutQuery(ctx context.Context, identity string, q *CachedQuery, ttl time.Duration) error
	GetStatus(ctx context.Context, eventID string) (*PublishStatus, error)
	SetStatus(ctx context.Context, eventID string, status *PublishStatus) error
}

func queryKey(identity string) string { return "query:" + identity }
func statusKey(eventID string) string { return "publish:" + eventID }

// StatusTTL is the fixed TTL for publish status records, per spec.md
// section 3.
const StatusTTL = 24 * time.Hour
