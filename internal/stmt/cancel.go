package stmt

import (
	"context"

	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
)

// recvResponse waits for the next message on responses, or for ctx to
// be cancelled first. A cancelled ctx is reported as an error rather
// than folded into the ok-bool: the row-streaming loops need to tell
// "cancelled" apart from "channel closed" to know whether the wire
// still needs draining (spec §4.5, §5).
func recvResponse(ctx context.Context, responses <-chan interface{}) (interface{}, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case msg, ok := <-responses:
		return msg, ok, nil
	}
}

// isExchangeTerminal reports whether msg ends the statement's entire
// response chain, including any MORE_RESULTS_EXISTS-linked result
// sets — the point at which the connection's wire state is back in
// sync and the next queued exchange can safely start.
func isExchangeTerminal(msg interface{}) bool {
	switch m := msg.(type) {
	case *protocol.Error:
		return true
	case *protocol.OK:
		return !m.Status.Has(protocol.StatusMoreResultsExists)
	case *protocol.EOF:
		return !m.Status.Has(protocol.StatusMoreResultsExists)
	default:
		return false
	}
}

// discardOnCancel drains responses through to the current exchange's
// terminal message once its caller has cancelled (spec §4.5's
// discard-on-cancel operator), so the next submitted exchange only
// starts once the wire is resynchronized. Messages arriving on
// responses are already-decoded values with no outstanding frame
// buffer by the time internal/stmt sees them (internal/connio releases
// the buffer before dispatching), so there is nothing to release here.
func discardOnCancel(ctx context.Context, responses <-chan interface{}) {
	exchange.DrainUntilCancelled(ctx, responses, isExchangeTerminal, func(interface{}) {})
}
