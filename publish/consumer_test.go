package publish

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/divinevideo/divine-rest-gateway/cachestore"
	"github.com/divinevideo/divine-rest-gateway/relayexec"
)

type memQueue struct {
	mu    sync.Mutex
	items []Job
	ready chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{ready: make(chan struct{}, 1)}
}

func (q *memQueue) Push(_ context.Context, job Job) error {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *memQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return &job, nil
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := remaining
		if wait > 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(wait):
		case <-q.ready:
		}
	}
}

type memStore struct {
	mu       sync.Mutex
	statuses map[string]*cachestore.PublishStatus
}

func newMemStore() *memStore {
	return &memStore{statuses: map[string]*cachestore.PublishStatus{}}
}

func (s *memStore) GetQuery(context.Context, string) (*cachestore.CachedQuery, int64, error) {
	return nil, 0, nil
}
func (s *memStore) PutQuery(context.Context, string, *cachestore.CachedQuery, time.Duration) error {
	return nil
}

func (s *memStore) GetStatus(_ context.Context, eventID string) (*cachestore.PublishStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[eventID], nil
}

func (s *memStore) SetStatus(_ context.Context, eventID string, status *cachestore.PublishStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.statuses[eventID]; ok && existing.Status == cachestore.StatusPublished {
		return nil
	}
	s.statuses[eventID] = status
	return nil
}

type fakeExecutor struct {
	mu         sync.Mutex
	publishFn  func(evt *nostr.Event) (relayexec.PublishResult, error)
	verifyFn   func(eventID string) (bool, error)
	publishes  int
	verifies   int
}

func (e *fakeExecutor) Publish(_ context.Context, evt *nostr.Event) (relayexec.PublishResult, error) {
	e.mu.Lock()
	e.publishes++
	e.mu.Unlock()
	return e.publishFn(evt)
}

func (e *fakeExecutor) Verify(_ context.Context, eventID string) (bool, error) {
	e.mu.Lock()
	e.verifies++
	e.mu.Unlock()
	return e.verifyFn(eventID)
}

func testJobFor(t *testing.T, id string) Job {
	t.Helper()
	evt := &nostr.Event{ID: id, PubKey: "aa", Kind: 1, CreatedAt: 1, Tags: nostr.Tags{}, Content: "x", Sig: "bb"}
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return Job{EventID: id, Event: raw}
}

// TestConsumerPublishHappyPath is scenario S5: a job that is accepted and
// immediately verified is marked published on the first attempt.
func TestConsumerPublishHappyPath(t *testing.T) {
	queue := newMemQueue()
	store := newMemStore()
	exec := &fakeExecutor{
		publishFn: func(evt *nostr.Event) (relayexec.PublishResult, error) {
			return relayexec.PublishResult{Accepted: true}, nil
		},
		verifyFn: func(string) (bool, error) { return true, nil },
	}
	consumer := NewConsumer(queue, store, exec)
	consumer.popTimeout = 20 * time.Millisecond

	job := testJobFor(t, "event1")
	_ = queue.Push(context.Background(), job)

	consumer.Start()
	waitForStatus(t, store, "event1", cachestore.StatusPublished, time.Second)
	consumer.Stop()

	status, _ := store.GetStatus(context.Background(), "event1")
	if status.Status != cachestore.StatusPublished {
		t.Fatalf("expected published, got %q", status.Status)
	}
	if status.VerifiedAt == nil {
		t.Fatal("expected VerifiedAt to be set")
	}
}

// TestConsumerRetriesUntilVerified is scenario S6: the relay accepts but a
// re-query fails to find the event on the first pass, so the job retries
// and eventually verifies.
func TestConsumerRetriesUntilVerified(t *testing.T) {
	queue := newMemQueue()
	store := newMemStore()
	var verifyCalls int
	exec := &fakeExecutor{
		publishFn: func(evt *nostr.Event) (relayexec.PublishResult, error) {
			return relayexec.PublishResult{Accepted: true}, nil
		},
		verifyFn: func(string) (bool, error) {
			verifyCalls++
			return verifyCalls >= 2, nil
		},
	}
	consumer := NewConsumer(queue, store, exec)
	consumer.popTimeout = 20 * time.Millisecond
	consumer.backoff = []time.Duration{20 * time.Millisecond}

	job := testJobFor(t, "event2")
	_ = queue.Push(context.Background(), job)

	consumer.Start()
	waitForStatus(t, store, "event2", cachestore.StatusPublished, 2*time.Second)
	consumer.Stop()

	status, _ := store.GetStatus(context.Background(), "event2")
	if status.Status != cachestore.StatusPublished {
		t.Fatalf("expected eventual published, got %q", status.Status)
	}
	if status.Attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", status.Attempts)
	}
}

// TestConsumerDeadLettersAfterMaxAttempts covers exhausting the retry
// schedule: a relay that always rejects ends in status "failed".
func TestConsumerDeadLettersAfterMaxAttempts(t *testing.T) {
	queue := newMemQueue()
	store := newMemStore()
	exec := &fakeExecutor{
		publishFn: func(evt *nostr.Event) (relayexec.PublishResult, error) {
			return relayexec.PublishResult{Accepted: false, RejectReason: "blocked", Message: "blocked: banned"}, nil
		},
		verifyFn: func(string) (bool, error) { return false, nil },
	}
	consumer := NewConsumer(queue, store, exec)
	consumer.popTimeout = 10 * time.Millisecond
	consumer.maxAttempts = 2
	consumer.backoff = []time.Duration{5 * time.Millisecond}

	job := testJobFor(t, "event3")
	_ = queue.Push(context.Background(), job)

	consumer.Start()
	waitForStatus(t, store, "event3", cachestore.StatusFailed, 2*time.Second)
	consumer.Stop()

	status, _ := store.GetStatus(context.Background(), "event3")
	if status.Status != cachestore.StatusFailed {
		t.Fatalf("expected failed, got %q", status.Status)
	}
	if status.Attempts != 2 {
		t.Fatalf("expected exactly maxAttempts=2 attempts, got %d", status.Attempts)
	}
	if status.RejectReason == nil || *status.RejectReason != "blocked" {
		t.Fatalf("expected reject reason to be preserved, got %v", status.RejectReason)
	}
}

func waitForStatus(t *testing.T, store *memStore, eventID, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if status, _ := store.GetStatus(context.Background(), eventID); status != nil && status.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event %s to reach status %q", eventID, want)
}
