package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/divinevideo/divine-rest-gateway/cachestore"
	"github.com/divinevideo/divine-rest-gateway/health"
	"github.com/divinevideo/divine-rest-gateway/logging"
	"github.com/divinevideo/divine-rest-gateway/metrics"
	"github.com/divinevideo/divine-rest-gateway/relayexec"
)

const module = "publish"

// DefaultMaxAttempts is the dead-letter threshold from spec.md section 4.F.
const DefaultMaxAttempts = 6

// DefaultBackoff is the exponential redelivery schedule from spec.md
// section 4.F: 1, 2, 4, 8, 16, 32 seconds.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// Executor is the subset of relayexec.Executor the Consumer depends on.
type Executor interface {
	Publish(ctx context.Context, evt *nostr.Event) (relayexec.PublishResult, error)
	Verify(ctx context.Context, eventID string) (bool, error)
}

// Consumer drains the publish Queue and drives each job through
// publish-then-verify, retrying with exponential backoff until it either
// lands or exhausts MaxAttempts, at which point it is dead-lettered (status
// "failed"). The start/stop shape — a stopChan plus sync.WaitGroup drained
// on Stop — is the same one the worker loop in the example pack uses for
// its commit/eviction loops, generalized here to a dequeue/retry loop.
type Consumer struct {
	queue       Queue
	store       cachestore.Store
	exec        Executor
	maxAttempts int
	backoff     []time.Duration
	popTimeout  time.Duration

	health *health.Tracker

	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewConsumer returns a Consumer with spec.md's default retry schedule.
func NewConsumer(queue Queue, store cachestore.Store, exec Executor) *Consumer {
	return &Consumer{
		queue:       queue,
		store:       store,
		exec:        exec,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		popTimeout:  2 * time.Second,
		stopChan:    make(chan struct{}),
	}
}

// SetMaxAttempts overrides the dead-letter threshold before Start is called.
func (c *Consumer) SetMaxAttempts(n int) {
	if n > 0 {
		c.maxAttempts = n
	}
}

// SetHealth attaches a failure tracker so publish outcomes feed the
// gateway's health endpoint.
func (c *Consumer) SetHealth(h *health.Tracker) {
	c.health = h
}

// Start launches the dequeue loop.
func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx)
	}()
}

// Stop signals the dequeue loop to exit and waits for it, and for any
// in-flight scheduled retries, to finish.
func (c *Consumer) Stop() {
	if !atomic.CompareAndSwapUint32(&c.stopped, 0, 1) {
		return
	}
	close(c.stopChan)
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) loop(ctx context.Context) {
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		job, err := c.queue.Pop(ctx, c.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Error("publish: queue pop failed: %v", err)
			continue
		}
		if job == nil {
			continue
		}
		c.process(ctx, *job)
	}
}

func (c *Consumer) process(ctx context.Context, job Job) {
	attempt := job.Attempts + 1
	logging.DebugMethod(module, "process", "attempt %d for event %s", attempt, job.EventID)
	_ = c.store.SetStatus(ctx, job.EventID, &cachestore.PublishStatus{
		Status:   fmt.Sprintf("attempt_%d", attempt),
		Attempts: attempt,
	})

	var evt nostr.Event
	if err := json.Unmarshal(job.Event, &evt); err != nil {
		errStr := err.Error()
		_ = c.store.SetStatus(ctx, job.EventID, &cachestore.PublishStatus{
			Status:   cachestore.StatusFailed,
			Attempts: attempt,
			Error:    &errStr,
		})
		return
	}

	metrics.PublishAttemptsTotal.Inc()
	result, pubErr := c.exec.Publish(ctx, &evt)
	if pubErr == nil && result.Accepted {
		if verified, verErr := c.exec.Verify(ctx, job.EventID); verErr == nil && verified {
			now := time.Now().Format(time.RFC3339)
			_ = c.store.SetStatus(ctx, job.EventID, &cachestore.PublishStatus{
				Status:     cachestore.StatusPublished,
				Attempts:   attempt,
				VerifiedAt: &now,
			})
			metrics.ObservePublishOutcome(true)
			if c.health != nil {
				c.health.RecordPublish(true)
			}
			return
		}
		logging.DebugMethod(module, "process", "event %s accepted but not yet visible on re-query", job.EventID)
	}
	if c.health != nil {
		c.health.RecordPublish(false)
	}

	var rejectReason *string
	if result.RejectReason != "" {
		r := result.RejectReason
		rejectReason = &r
	}

	if attempt >= c.maxAttempts {
		errStr := "max attempts exceeded"
		if pubErr != nil {
			errStr = pubErr.Error()
		} else if result.Message != "" {
			errStr = result.Message
		}
		_ = c.store.SetStatus(ctx, job.EventID, &cachestore.PublishStatus{
			Status:       cachestore.StatusFailed,
			Attempts:     attempt,
			Error:        &errStr,
			RejectReason: rejectReason,
		})
		logging.Warn("publish: event %s dead-lettered after %d attempts", job.EventID, attempt)
		metrics.ObservePublishOutcome(false)
		return
	}

	retryErr := "event not found on relay"
	if pubErr != nil {
		retryErr = pubErr.Error()
	} else if !result.Accepted {
		retryErr = "relay rejected"
	}
	_ = c.store.SetStatus(ctx, job.EventID, &cachestore.PublishStatus{
		Status:       fmt.Sprintf("retry_%d", attempt),
		Attempts:     attempt,
		Error:        &retryErr,
		RejectReason: rejectReason,
	})

	delay := c.backoffFor(attempt)
	c.wg.Add(1)
	go c.scheduleRetry(ctx, Job{EventID: job.EventID, Event: job.Event, Attempts: attempt}, delay)
}

func (c *Consumer) backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.backoff) {
		idx = len(c.backoff) - 1
	}
	return c.backoff[idx]
}

func (c *Consumer) scheduleRetry(ctx context.Context, job Job, delay time.Duration) {
	defer c.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if err := c.queue.Push(context.Background(), job); err != nil {
		logging.Error("publish: failed to requeue event %s: %v", job.EventID, err)
	}
}
