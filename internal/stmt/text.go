package stmt

import (
	"context"

	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// ExecuteText runs sql as a text (simple) statement (spec §4.6): issue
// COM_QUERY, then drain whatever framing the server chose (OK,
// LOCAL INFILE exchange, or a column/row/terminal result-set chain,
// possibly repeated for MORE_RESULTS_EXISTS). The returned Results
// streams progressively; the statement keeps running in the exchange
// queue's drain goroutine after ExecuteText returns.
func (r *Runner) ExecuteText(ctx context.Context, sql string) *Results {
	results := newResults()
	cmd := &protocol.ComQuery{SQL: sql}

	ex := &exchange.Exchange{Run: func(ctx context.Context, responses <-chan interface{}) error {
		r.Transport.ResetSeq()
		if err := r.Transport.WritePayload(cmd.Encode()); err != nil {
			return err
		}
		return r.drainResultChain(ctx, responses, results, sql)
	}}

	done := r.Queue.Submit(ctx, ex)
	go func() {
		err := <-done
		results.finish(err)
	}()
	return results
}

// drainResultChain reads one statement's full response: repeats across
// MORE_RESULTS_EXISTS-chained result sets, handling LOCAL INFILE
// requests inline, until a terminal OK/EOF without that status bit.
func (r *Runner) drainResultChain(ctx context.Context, responses <-chan interface{}, results *Results, sql string) error {
	for {
		msg, ok, cancelErr := recvResponse(ctx, responses)
		if cancelErr != nil {
			discardOnCancel(ctx, responses)
			return cancelErr
		}
		if !ok {
			return xerrors.NewConnectionClosedError(false, nil)
		}
		switch m := msg.(type) {
		case *protocol.Error:
			return m.AsServerError().WithSQL(sql)
		case *protocol.OK:
			rs := newResultSet(nil)
			results.sets <- rs
			rs.finish(m.Status, m.AffectedRows, m.LastInsertID, m.WarningCount)
			if !m.Status.Has(protocol.StatusMoreResultsExists) {
				results.finish(nil)
				return nil
			}
			continue
		case *protocol.LocalInfileRequest:
			if err := r.handleLocalInfile(ctx, m); err != nil {
				return err
			}
			continue
		case *protocol.ColumnCount:
			continue // synthetic MetadataBundle follows; see package doc
		case *protocol.MetadataBundle:
			rs := newResultSet(m.Columns)
			results.sets <- rs
			more, err := r.drainRows(ctx, responses, rs, m.Columns, false)
			if err != nil {
				return err
			}
			if !more {
				results.finish(nil)
				return nil
			}
			continue
		default:
			return xerrors.NewProtocolError("stmt: unexpected message in result chain", nil)
		}
	}
}

// drainRows streams *protocol.Row messages into rs until the result
// set's terminal OK/EOF, returning whether MORE_RESULTS_EXISTS chains
// into another result set.
func (r *Runner) drainRows(ctx context.Context, responses <-chan interface{}, rs *ResultSet, columns []protocol.ColumnDefinition, binary bool) (bool, error) {
	for {
		msg, ok, cancelErr := recvResponse(ctx, responses)
		if cancelErr != nil {
			rs.fail(cancelErr)
			discardOnCancel(ctx, responses)
			return false, cancelErr
		}
		if !ok {
			rs.fail(xerrors.NewConnectionClosedError(false, nil))
			return false, xerrors.NewConnectionClosedError(false, nil)
		}
		switch m := msg.(type) {
		case *protocol.Row:
			rs.push(&AppRow{raw: m, columns: columns, binary: binary, registry: r.Codecs, connCtx: r.Ctx})
		case *protocol.EOF:
			if binary && m.Status.Has(protocol.StatusCursorExists) && !m.Status.Has(protocol.StatusLastRowSent) {
				rs.setStatus(m.Status, 0, 0, m.WarningCount)
				return m.Status.Has(protocol.StatusMoreResultsExists), nil
			}
			rs.finish(m.Status, 0, 0, m.WarningCount)
			return m.Status.Has(protocol.StatusMoreResultsExists), nil
		case *protocol.OK:
			rs.finish(m.Status, m.AffectedRows, m.LastInsertID, m.WarningCount)
			return m.Status.Has(protocol.StatusMoreResultsExists), nil
		case *protocol.Error:
			err := m.AsServerError()
			rs.fail(err)
			return false, err
		default:
			err := xerrors.NewProtocolError("stmt: unexpected message in row stream", nil)
			rs.fail(err)
			return false, err
		}
	}
}

// ExecuteClientPrepared implements the client-prepared-statement flow
// (spec §4.6): tokenize sql, substitute each `?`/`:name` marker with
// its already-escaped textual form, and run the result as a text
// statement.
func (r *Runner) ExecuteClientPrepared(ctx context.Context, sql string, args []interface{}) (*Results, error) {
	parsed := tokenizeForRender(sql)
	escaped := make([]string, len(args))
	for i, a := range args {
		s, err := r.escapeValue(a)
		if err != nil {
			return nil, err
		}
		escaped[i] = s
	}
	rendered, err := parsed.Render(escaped)
	if err != nil {
		return nil, err
	}
	return r.ExecuteText(ctx, rendered), nil
}
