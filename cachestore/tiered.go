package cachestore

import (
	"context"
	"time"
)

// Tiered composes a fast local tier in front of a durable remote tier
// (typically LocalStore in front of RedisStore), implementing the
// multi-tier cache layering described in spec.md section 9. A query hit in
// the local tier avoids a Redis round-trip entirely; a miss falls through
// to remote and back-fills local. Publish status always goes to remote,
// since its monotonicity invariant (P5) is enforced there.
type Tiered struct {
	Local  Store
	Remote Store
}

// localBackfillTTL bounds how long a remote-tier hit is mirrored into the
// local tier. It is intentionally short: the local tier exists to absorb a
// burst of concurrent requests for the same identity, not to duplicate
// Redis's own TTL bookkeeping.
const localBackfillTTL = 2 * time.Second

func (t *Tiered) GetQuery(ctx context.Context, identity string) (*CachedQuery, int64, error) {
	if q, age, err := t.Local.GetQuery(ctx, identity); err == nil && q != nil {
		return q, age, nil
	}
	q, age, err := t.Remote.GetQuery(ctx, identity)
	if err != nil {
		return nil, 0, err
	}
	if q != nil {
		_ = t.Local.PutQuery(ctx, identity, q, localBackfillTTL)
	}
	return q, age, nil
}

func (t *Tiered) PutQuery(ctx context.Context, identity string, q *CachedQuery, ttl time.Duration) error {
	_ = t.Local.PutQuery(ctx, identity, q, ttl)
	return t.Remote.PutQuery(ctx, identity, q, ttl)
}

func (t *Tiered) GetStatus(ctx context.Context, eventID string) (*PublishStatus, error) {
	return t.Remote.GetStatus(ctx, eventID)
}

func (t *Tiered) SetStatus(ctx context.Context, eventID string, status *PublishStatus) error {
	return t.Remote.SetStatus(ctx, eventID, status)
}

var _ Store = (*Tiered)(nil)
