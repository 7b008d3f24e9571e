package stmt

import (
	"context"

	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// ResetConnection issues COM_RESET_CONNECTION (SPEC_FULL.md §10):
// the server clears session variables, rolls back any open
// transaction, and drops every prepared statement on this connection
// without the cost of a fresh TCP/handshake round trip. The local
// prepared-statement cache is invalidated to match, since every
// statement id it names is now meaningless to the server.
func (r *Runner) ResetConnection(ctx context.Context) error {
	var resultErr error
	cmd := &protocol.ComResetConnection{}
	ex := &exchange.Exchange{Run: func(ctx context.Context, responses <-chan interface{}) error {
		r.Transport.ResetSeq()
		if err := r.Transport.WritePayload(cmd.Encode()); err != nil {
			return err
		}
		msg, ok := <-responses
		if !ok {
			return xerrors.NewConnectionClosedError(false, nil)
		}
		switch m := msg.(type) {
		case *protocol.Error:
			resultErr = m.AsServerError()
		case *protocol.OK:
			r.Ctx.ApplyStatus(m.Status)
		default:
			return xerrors.NewProtocolError("stmt: unexpected message in RESET_CONNECTION response", nil)
		}
		return nil
	}}

	if err := <-r.Queue.Submit(ctx, ex); err != nil {
		return err
	}
	r.invalidateAllPrepared()
	return resultErr
}

// invalidateAllPrepared drops every entry this connection's prepared
// cache and id->metadata map know about, without sending
// COM_STMT_CLOSE for any of them - the server already discarded them
// as part of RESET_CONNECTION.
func (r *Runner) invalidateAllPrepared() {
	r.meta.mu.Lock()
	for id, p := range r.meta.byID {
		if r.Prepared != nil {
			r.Prepared.Remove(p.SQL)
		}
		delete(r.meta.byID, id)
	}
	r.meta.mu.Unlock()
}
