// Package relayexec implements the relay session executor: spec.md section
// 4.D's "core algorithm." Each call opens one websocket connection to the
// upstream relay, runs exactly one REQ subscription (or one EVENT publish)
// to completion, and tears the connection down. It deliberately talks raw
// NIP-01 frames over github.com/coder/websocket rather than going through
// go-nostr's nostr.Relay/nostr.SimplePool, which hide the EOSE/timeout
// control this package needs to implement the hybrid completion policy.
package relayexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/nbd-wtf/go-nostr"

	"github.com/divinevideo/divine-rest-gateway/filterid"
	"github.com/divinevideo/divine-rest-gateway/gwerrors"
	"github.com/divinevideo/divine-rest-gateway/logging"
	"github.com/divinevideo/divine-rest-gateway/metrics"
)

const module = "relayexec"

// Executor owns a single upstream relay URL and runs one-shot query and
// publish sessions against it.
type Executor struct {
	cfg        Config
	subCounter atomic.Uint64
}

// New returns an Executor configured with the given relay URL and tiered
// completion deadlines.
func New(cfg Config) *Executor {
	return &Executor{cfg: cfg.withDefaults()}
}

// QueryResult is what a single REQ session produced before it terminated.
type QueryResult struct {
	Events       []json.RawMessage
	Eose         bool
	LimitReached bool
}

func (e *Executor) nextSubID() string {
	return fmt.Sprintf("gw-%d-%d", time.Now().UnixNano(), e.subCounter.Add(1))
}

func (e *Executor) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, e.cfg.RelayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrRelayUnavailable, err)
	}
	conn.SetReadLimit(32 << 20)
	return conn, nil
}

// Query opens a connection, issues a single REQ for filter, and runs the
// hybrid completion race described in spec.md section 4.D:
//
//   - EOSE received for our subscription: done, eose=true.
//   - events collected reaches filter.Limit: done, limitReached=true.
//   - 300ms pass with no new event since the first one arrived: done.
//   - 1000ms pass with zero events collected: done.
//   - 5000ms pass regardless: done (the hard cap; guarantees P4).
//
// The race is implemented as a single blocking Read per iteration against a
// context whose deadline is recomputed from whichever of the above fires
// soonest, never as a poll loop.
func (e *Executor) Query(ctx context.Context, filter *filterid.Filter) (QueryResult, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return QueryResult{}, err
	}
	defer conn.CloseNow()

	subID := e.nextSubID()
	canon, err := filterid.Canonical(filter)
	if err != nil {
		return QueryResult{}, err
	}
	req, err := json.Marshal([]interface{}{"REQ", subID, json.RawMessage(canon)})
	if err != nil {
		return QueryResult{}, err
	}
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		return QueryResult{}, fmt.Errorf("%w: %v", gwerrors.ErrRelayUnavailable, err)
	}

	started := time.Now()
	hardDeadline := started.Add(e.cfg.HardTimeout)

	var events []json.RawMessage
	var lastEventAt time.Time
	eose := false
	limitReached := false
	reason := metrics.ReasonHardTimeout

recvLoop:
	for {
		deadline := hardDeadline
		nextReason := metrics.ReasonHardTimeout
		if len(events) > 0 {
			if idle := lastEventAt.Add(e.cfg.IdleTimeout); idle.Before(deadline) {
				deadline = idle
				nextReason = metrics.ReasonIdleTimeout
			}
		} else if empty := started.Add(e.cfg.EmptyTimeout); empty.Before(deadline) {
			deadline = empty
			nextReason = metrics.ReasonEmptyTimeout
		}
		if !time.Now().Before(deadline) {
			reason = nextReason
			break recvLoop
		}

		readCtx, cancel := context.WithDeadline(ctx, deadline)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			// Deadline exceeded or the relay closed on us; either way this
			// session is done, and every exit from here is a well-formed
			// completion rather than a caller-visible error.
			reason = nextReason
			break recvLoop
		}
		if typ != websocket.MessageText {
			continue
		}

		kind, rest, ok := parseFrame(data)
		if !ok {
			continue
		}
		switch kind {
		case "EVENT":
			if len(rest) < 2 || decodeString(rest[0]) != subID {
				continue
			}
			events = append(events, rest[1])
			lastEventAt = time.Now()
			if filter.Limit != nil && len(events) >= *filter.Limit {
				limitReached = true
				reason = metrics.ReasonLimitReached
				break recvLoop
			}
		case "EOSE":
			if len(rest) < 1 || decodeString(rest[0]) != subID {
				continue
			}
			eose = true
			reason = metrics.ReasonEose
			break recvLoop
		case "NOTICE":
			if len(rest) >= 1 {
				logging.DebugMethod(module, "Query", "relay NOTICE: %s", decodeString(rest[0]))
			}
		default:
			// CLOSED, AUTH, and anything else are ignored here; this
			// session never authenticates and never expects a CLOSED.
		}
	}

	metrics.ObserveExecutorSession(reason, time.Since(started))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if closeMsg, err := json.Marshal([]interface{}{"CLOSE", subID}); err == nil {
		_ = conn.Write(closeCtx, websocket.MessageText, closeMsg)
	}

	return QueryResult{Events: events, Eose: eose, LimitReached: limitReached}, nil
}

// Verify re-queries the relay for a single event id with limit 1, used by
// the publish pipeline's post-publish verification step.
func (e *Executor) Verify(ctx context.Context, eventID string) (bool, error) {
	one := 1
	result, err := e.Query(ctx, &filterid.Filter{IDs: []string{eventID}, Limit: &one})
	if err != nil {
		return false, err
	}
	return len(result.Events) > 0, nil
}

// PublishResult is what a single EVENT publish session produced.
type PublishResult struct {
	Accepted     bool
	RejectReason string
	Message      string
}

// Publish opens a connection, sends a single EVENT frame, and waits up to
// PublishTimeout for a matching OK frame. A missing OK (timeout or closed
// connection) is reported as Accepted=false rather than an error, per
// spec.md section 4.F: the publish pipeline treats that identically to an
// explicit rejection and retries.
func (e *Executor) Publish(ctx context.Context, evt *nostr.Event) (PublishResult, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return PublishResult{}, err
	}
	defer conn.CloseNow()

	msg, err := json.Marshal([]interface{}{"EVENT", evt})
	if err != nil {
		return PublishResult{}, err
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return PublishResult{}, fmt.Errorf("%w: %v", gwerrors.ErrRelayUnavailable, err)
	}

	deadline := time.Now().Add(e.cfg.PublishTimeout)
	for {
		if !time.Now().Before(deadline) {
			return PublishResult{Accepted: false}, nil
		}
		readCtx, cancel := context.WithDeadline(ctx, deadline)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return PublishResult{Accepted: false}, nil
		}
		if typ != websocket.MessageText {
			continue
		}
		kind, rest, ok := parseFrame(data)
		if !ok || kind != "OK" || len(rest) < 2 {
			continue
		}
		if decodeString(rest[0]) != evt.ID {
			continue
		}
		accepted := decodeBool(rest[1])
		message := ""
		if len(rest) >= 3 {
			message = decodeString(rest[2])
		}
		result := PublishResult{Accepted: accepted, Message: message}
		if !accepted {
			result.RejectReason = parseErrorPrefix(message)
		}
		return result, nil
	}
}
