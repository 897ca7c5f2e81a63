package cachestore

import (
	"context"
	"sync"
	"time"
)

// entry pairs a stored value with its expiry time.
type entry struct {
	query     *CachedQuery
	status    *PublishStatus
	expiresAt time.Time
}

// LocalStore is an in-process, single-instance cache tier with a periodic
// cleanup sweep. It is adapted from the teacher's broadcast-store event
// dedup cache (an eventCache map[string]time.Time plus a cleanup ticker),
// generalized here from "have I seen this event id" into a full Store
// implementation. It is used as the executor-local session-coalescing tier
// spec.md section 5 calls out as an optional optimization, and as a
// dependency-free Store for unit tests that don't want a Redis fixture.
type LocalStore struct {
	mu      sync.RWMutex
	entries map[string]entry

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewLocalStore creates a LocalStore and starts its background cleanup
// sweep at the given interval.
func NewLocalStore(cleanupInterval time.Duration) *LocalStore {
	s := &LocalStore{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

// Close stops the background cleanup sweep.
func (s *LocalStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *LocalStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *LocalStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *LocalStore) GetQuery(_ context.Context, identity string) (*CachedQuery, int64, error) {
	s.mu.RLock()
	e, ok := s.entries[queryKey(identity)]
	s.mu.RUnlock()
	if !ok || e.query == nil || time.Now().After(e.expiresAt) {
		return nil, 0, nil
	}
	return e.query, e.query.Age(time.Now()), nil
}

func (s *LocalStore) PutQuery(_ context.Context, identity string, q *CachedQuery, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[queryKey(identity)] = entry{query: q, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *LocalStore) GetStatus(_ context.Context, eventID string) (*PublishStatus, error) {
	s.mu.RLock()
	e, ok := s.entries[statusKey(eventID)]
	s.mu.RUnlock()
	if !ok || e.status == nil || time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.status, nil
}

func (s *LocalStore) SetStatus(_ context.Context, eventID string, status *PublishStatus) error {
	key := statusKey(eventID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.status != nil && e.status.Status == StatusPublished {
		return nil
	}
	s.entries[key] = entry{status: status, expiresAt: time.Now().Add(StatusTTL)}
	return nil
}

var _ Store = (*LocalStore)(nil)
