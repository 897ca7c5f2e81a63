package cachestore

import (
	"context"
	"testing"
	"time"
)

func TestLocalStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(0)
	defer store.Close()

	q := &CachedQuery{Eose: true, Timestamp: time.Now().Unix()}
	if err := store.PutQuery(ctx, "id1", q, 20*time.Millisecond); err != nil {
		t.Fatalf("PutQuery: %v", err)
	}

	if got, _, _ := store.GetQuery(ctx, "id1"); got == nil {
		t.Fatal("expected immediate hit")
	}

	time.Sleep(40 * time.Millisecond)
	if got, _, _ := store.GetQuery(ctx, "id1"); got != nil {
		t.Fatal("expected entry to have expired")
	}
}

func TestLocalStoreMonotonicPublish(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(0)
	defer store.Close()

	_ = store.SetStatus(ctx, "evt", &PublishStatus{Status: StatusPublished, Attempts: 1})
	_ = store.SetStatus(ctx, "evt", &PublishStatus{Status: "retry_2", Attempts: 2})

	got, _ := store.GetStatus(ctx, "evt")
	if got.Status != StatusPublished {
		t.Fatalf("expected published to stick, got %q", got.Status)
	}
}

func TestLocalStoreCleanupSweep(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(10 * time.Millisecond)
	defer store.Close()

	_ = store.PutQuery(ctx, "id1", &CachedQuery{}, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	store.mu.RLock()
	_, stillPresent := store.entries[queryKey("id1")]
	store.mu.RUnlock()
	if stillPresent {
		t.Fatal("expected cleanup sweep to evict expired entry")
	}
}
