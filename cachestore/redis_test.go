package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	q := &CachedQuery{Events: nil, Eose: true, Timestamp: time.Now().Add(-45 * time.Second).Unix()}
	if err := store.PutQuery(ctx, "deadbeef", q, 300*time.Second); err != nil {
		t.Fatalf("PutQuery: %v", err)
	}

	got, age, err := store.GetQuery(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if age < 44 || age > 46 {
		t.Fatalf("expected age ~45s, got %d", age)
	}
	if !got.Eose {
		t.Fatal("expected eose=true")
	}
}

func TestRedisStoreQueryMiss(t *testing.T) {
	store := newTestRedisStore(t)
	got, _, err := store.GetQuery(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil on miss")
	}
}

// TestPublishStatusMonotonicity is property P5: once published, later
// writes must not overwrite with retry_* or failed.
func TestPublishStatusMonotonicity(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)
	eventID := "event1"

	if err := store.SetStatus(ctx, eventID, &PublishStatus{Status: "queued", Attempts: 0}); err != nil {
		t.Fatalf("SetStatus queued: %v", err)
	}
	if err := store.SetStatus(ctx, eventID, &PublishStatus{Status: "attempt_1", Attempts: 1}); err != nil {
		t.Fatalf("SetStatus attempt_1: %v", err)
	}
	now := time.Now().Format(time.RFC3339)
	if err := store.SetStatus(ctx, eventID, &PublishStatus{Status: StatusPublished, Attempts: 1, VerifiedAt: &now}); err != nil {
		t.Fatalf("SetStatus published: %v", err)
	}

	// Late redelivery tries to downgrade status; must be rejected.
	errStr := "relay rejected"
	if err := store.SetStatus(ctx, eventID, &PublishStatus{Status: "retry_2", Attempts: 2, Error: &errStr}); err != nil {
		t.Fatalf("SetStatus retry_2: %v", err)
	}

	got, err := store.GetStatus(ctx, eventID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.Status != StatusPublished {
		t.Fatalf("expected status to remain published, got %q", got.Status)
	}
}

func TestRedisStoreUnavailableOnClosedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	client.Close()

	_, _, err := store.GetQuery(context.Background(), "x")
	if err != ErrStoreUnavailable {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
