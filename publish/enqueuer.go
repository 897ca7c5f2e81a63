package publish

import (
	"context"
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"

	"github.com/divinevideo/divine-rest-gateway/cachestore"
)

// Enqueuer is the synchronous half of the publish pipeline: httpapi calls
// Enqueue after nip98.Validate has already authenticated the request, so
// Enqueue itself does no auth work, only bookkeeping.
type Enqueuer struct {
	store cachestore.Store
	queue Queue
}

// NewEnqueuer wires a cache store and a queue together.
func NewEnqueuer(store cachestore.Store, queue Queue) *Enqueuer {
	return &Enqueuer{store: store, queue: queue}
}

// Enqueue writes the initial "queued" status record and pushes the event
// onto the queue for the Consumer to pick up. The authenticated pubkey is
// not passed in or recorded: httpapi has already rejected the request if
// the NIP-98 signer did not match the event's own pubkey, and this package
// does not re-check that binding.
func (e *Enqueuer) Enqueue(ctx context.Context, evt *nostr.Event) (string, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	status := &cachestore.PublishStatus{Status: cachestore.StatusQueued, Attempts: 0}
	if err := e.store.SetStatus(ctx, evt.ID, status); err != nil {
		return "", err
	}
	if err := e.queue.Push(ctx, Job{EventID: evt.ID, Event: raw, Attempts: 0}); err != nil {
		return "", err
	}
	return evt.ID, nil
}
