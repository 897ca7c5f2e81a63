// Package publish implements the enqueue/dequeue/publish/verify pipeline of
// spec.md section 4.F: a caller-authenticated event is queued, published to
// the relay, re-queried to confirm arrival, and retried with exponential
// backoff until it either lands or is dead-lettered.
package publish

import "encoding/json"

// Job is one unit of queued publish work.
type Job struct {
	EventID  string          `json:"event_id"`
	Event    json.RawMessage `json:"event"`
	Attempts int             `json:"attempts"`
}
