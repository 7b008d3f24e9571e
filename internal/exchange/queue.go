// Package exchange serializes overlapping request/response exchanges
// on one connection (spec §4.5), providing backpressure, cancellation,
// and orderly shutdown. Grounded on the teacher's worker-pool/stop-
// channel idiom (server/protocol/message_bus.go's AsyncMessageBus),
// generalized from "dispatch inbound messages to subscribed handlers"
// to "drain one outstanding client/server exchange at a time".
package exchange

import (
	"context"
	"sync"

	"github.com/zhukovaskychina/rxmysql/xerrors"
)

type queueState int

const (
	stateIdle queueState = iota
	stateActive
	stateDisposed
)

// ResponseChannelCapacity is the bounded multicast capacity named in
// spec §4.5: "the per-connection response channel is a bounded
// multicast with capacity 512; exceeding it triggers a fatal overflow
// error".
const ResponseChannelCapacity = 512

// ErrOverflow is returned when more than ResponseChannelCapacity
// server messages for one exchange arrive before the handler drains
// them.
var ErrOverflow = xerrors.NewProtocolError("response channel overflow", nil)

// ErrDisposed is returned by Submit once the queue has been closed.
var ErrDisposed = xerrors.NewConnectionClosedError(true, nil)

// Exchange is one outstanding request/response unit (spec §4.5's
// "(request-producer, response-handler, result-sink)" triple).
// Run is invoked by the drain loop with a channel of server messages
// scoped to this exchange; it must read until the server's terminal
// message for this exchange, then return. ctx carries cancellation.
type Exchange struct {
	Run func(ctx context.Context, responses <-chan interface{}) error

	// ctx is the context the submitting caller passed to Submit. It is
	// captured per-exchange rather than once per drain loop: the queue
	// may run many exchanges back to back without ever going idle, and
	// each one's cancellation must be its own, not whichever caller
	// happened to be the one that woke the drain loop up.
	ctx  context.Context
	done chan error
}

// Queue drains one Exchange at a time, in submit order
// (spec §4.5, §8 "Request-queue ordering").
type Queue struct {
	mu      sync.Mutex
	state   queueState
	pending []*Exchange

	// responses is fed by the connection's single reader goroutine via
	// Dispatch and consumed by whichever Exchange is currently running.
	responses chan interface{}

	cancel func()
}

func New() *Queue {
	return &Queue{state: stateIdle, responses: make(chan interface{}, ResponseChannelCapacity)}
}

// Submit enqueues ex; if the queue was idle, it starts draining.
// Ordering guarantee: exchanges submitted from application goroutines
// are totally ordered by the order Submit is called (spec §8).
func (q *Queue) Submit(ctx context.Context, ex *Exchange) <-chan error {
	ex.ctx = ctx
	ex.done = make(chan error, 1)

	q.mu.Lock()
	if q.state == stateDisposed {
		q.mu.Unlock()
		ex.done <- ErrDisposed
		return ex.done
	}
	q.pending = append(q.pending, ex)
	wasIdle := q.state == stateIdle
	if wasIdle {
		q.state = stateActive
	}
	q.mu.Unlock()

	if wasIdle {
		go q.drain()
	}
	return ex.done
}

// drain pops one exchange at a time and runs it to completion. A
// cancelled exchange's Run is expected to return promptly (its own
// cooperative cancellation check), but the queue's active/idle flag is
// only ever flipped to idle here, after popping an empty queue - never
// from a cancelled task's own completion path. This is the invariant
// spec §9's Open Question demands: a task cancelled before it begins
// running still leaves the queue active, and the loop still advances
// (see DESIGN.md).
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.state = stateIdle
			q.mu.Unlock()
			return
		}
		ex := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := ex.Run(ex.ctx, q.responses)
		ex.done <- err
		close(ex.done)
	}
}

// Dispatch hands one server message to whichever exchange is currently
// reading. Called from the connection's reader goroutine.
func (q *Queue) Dispatch(msg interface{}) error {
	select {
	case q.responses <- msg:
		return nil
	default:
		return ErrOverflow
	}
}

// Close transitions the queue to disposed, failing every remaining
// queued exchange with ErrDisposed (spec §4.5 "Shutdown").
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == stateDisposed {
		return
	}
	q.state = stateDisposed
	for _, ex := range q.pending {
		ex.done <- ErrDisposed
		close(ex.done)
	}
	q.pending = nil
}

// DrainUntilCancelled implements the "discard-on-cancel" operator
// (spec §4.5, §5): pull and release server messages belonging to the
// current exchange until its terminal message arrives, even though the
// caller has stopped wanting them. release is called for every pulled
// message so reference-counted buffers are freed.
func DrainUntilCancelled(ctx context.Context, responses <-chan interface{}, isTerminal func(interface{}) bool, release func(interface{})) {
	// Deliberately ignores ctx from here on: spec §5 requires draining
	// through to the exchange's terminal message even after
	// cancellation, so ctx.Done() must not short-circuit this loop.
	_ = ctx
	for {
		msg, ok := <-responses
		if !ok {
			return
		}
		release(msg)
		if isTerminal(msg) {
			return
		}
	}
}
