package stmt

import (
	"context"
	"sync"

	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// metaBySQL caches the column metadata a prepared statement returned,
// keyed by statement id, so a cache hit can skip re-PREPAREing without
// losing the Scan-time column information (the cache.Prepared layer
// only tracks sql -> id; this is the id -> metadata half).
type metaBySQL struct {
	mu   sync.Mutex
	byID map[uint32]*Prepared
}

func (m *metaBySQL) get(id uint32) (*Prepared, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	return p, ok
}

func (m *metaBySQL) put(id uint32, p *Prepared) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = map[uint32]*Prepared{}
	}
	m.byID[id] = p
}

func (m *metaBySQL) delete(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// newMetaBySQL builds the empty id->metadata map for one Runner.
// Earlier revisions kept this as a single package-level global, which
// silently conflated statement ids across every connection in the
// process - the server hands out ids scoped to its own connection, so
// two connections can legally share an id for unrelated statements.
func newMetaBySQL() *metaBySQL { return &metaBySQL{} }

// Prepare runs COM_STMT_PREPARE for sql, or returns the cached handle
// if an identical statement was already prepared on this connection
// (spec §4.6 step 2).
func (r *Runner) Prepare(ctx context.Context, sql string) (*Prepared, error) {
	if r.Prepared != nil {
		if id, ok := r.Prepared.GetIfPresent(sql); ok {
			if p, ok := r.meta.get(id); ok {
				return p, nil
			}
		}
	}

	var result *Prepared
	var resultErr error
	cmd := &protocol.ComStmtPrepare{SQL: sql}
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
			resultErr = m.AsServerError().WithSQL(sql)
			return nil
		case *protocol.PreparedOK:
			p := &Prepared{SQL: sql, StatementID: m.StatementID, ParamCount: int(m.ParamCount), ColumnCount: int(m.ColumnCount)}
			if m.ColumnCount > 0 {
				bundle, ok := (<-responses).(*protocol.MetadataBundle)
				if !ok {
					return xerrors.NewProtocolError("stmt: expected metadata bundle after PreparedOK", nil)
				}
				p.Columns = bundle.Columns
			}
			result = p
			return nil
		default:
			return xerrors.NewProtocolError("stmt: unexpected message in PREPARE response", nil)
		}
	}}

	if err := <-r.Queue.Submit(ctx, ex); err != nil {
		return nil, err
	}
	if resultErr != nil {
		return nil, resultErr
	}

	if r.Prepared != nil {
		r.meta.put(result.StatementID, result)
		r.Prepared.PutIfAbsent(sql, result.StatementID)
	}
	return result, nil
}

// Execute runs COM_STMT_EXECUTE against an already-prepared statement.
// When r.FetchSize > 0 and the statement returns rows, it opens a
// read-only cursor and drains it with repeated COM_STMT_FETCH until
// LAST_ROW_SENT (spec §4.6 step 3).
func (r *Runner) Execute(ctx context.Context, p *Prepared, params []interface{}) (*Results, error) {
	results := newResults()

	boundParams := make([]protocol.BoundParam, len(params))
	for i, v := range params {
		bp, err := r.bindParam(v)
		if err != nil {
			return nil, err
		}
		boundParams[i] = bp
	}

	cursorType := protocol.CursorTypeNoCursor
	useCursor := r.FetchSize > 0 && p.ColumnCount > 0
	if useCursor {
		cursorType = protocol.CursorTypeReadOnly
	}

	cmd := &protocol.ComStmtExecute{StatementID: p.StatementID, CursorType: cursorType, Params: boundParams}

	ex := &exchange.Exchange{Run: func(ctx context.Context, responses <-chan interface{}) error {
		r.Transport.ResetSeq()
		if err := r.Transport.WritePayload(cmd.Encode()); err != nil {
			return err
		}
		return r.drainPreparedExecute(ctx, responses, results, p, useCursor)
	}}

	done := r.Queue.Submit(ctx, ex)
	go func() {
		err := <-done
		results.finish(err)
	}()
	return results, nil
}

func (r *Runner) drainPreparedExecute(ctx context.Context, responses <-chan interface{}, results *Results, p *Prepared, useCursor bool) error {
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
		return m.AsServerError().WithSQL(p.SQL)
	case *protocol.OK:
		rs := newResultSet(nil)
		results.sets <- rs
		rs.finish(m.Status, m.AffectedRows, m.LastInsertID, m.WarningCount)
		results.finish(nil)
		return nil
	case *protocol.MetadataBundle:
		rs := newResultSet(m.Columns)
		results.sets <- rs
		more, err := r.drainRows(ctx, responses, rs, m.Columns, true)
		if err != nil {
			return err
		}
		if useCursor && rs.Status.Has(protocol.StatusCursorExists) && !rs.Status.Has(protocol.StatusLastRowSent) {
			if err := r.fetchCursorLoop(ctx, responses, p, rs, m.Columns); err != nil {
				return err
			}
		}
		if more {
			return r.drainPreparedExecute(ctx, responses, results, p, useCursor)
		}
		results.finish(nil)
		return nil
	default:
		return xerrors.NewProtocolError("stmt: unexpected message in EXECUTE response", nil)
	}
}

// fetchCursorLoop pulls additional row batches with COM_STMT_FETCH
// until the server reports LAST_ROW_SENT (spec §4.6 step 3, Glossary
// "Fetch cursor"). It checks ctx before issuing each further fetch:
// unlike ordinary row-streaming, the cursor is client-paced, so a
// cancellation observed between batches can stop the loop without
// needing to drain a batch that was never requested.
func (r *Runner) fetchCursorLoop(ctx context.Context, responses <-chan interface{}, p *Prepared, rs *ResultSet, columns []protocol.ColumnDefinition) error {
	for {
		select {
		case <-ctx.Done():
			rs.fail(ctx.Err())
			return ctx.Err()
		default:
		}

		fetch := &protocol.ComStmtFetch{StatementID: p.StatementID, RowCount: uint32(r.FetchSize)}
		r.Transport.ResetSeq()
		if err := r.Transport.WritePayload(fetch.Encode()); err != nil {
			return err
		}
		more, err := r.drainFetchRows(ctx, responses, rs, columns)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (r *Runner) drainFetchRows(ctx context.Context, responses <-chan interface{}, rs *ResultSet, columns []protocol.ColumnDefinition) (bool, error) {
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
			rs.push(&AppRow{raw: m, columns: columns, binary: true, registry: r.Codecs, connCtx: r.Ctx})
		case *protocol.EOF:
			if m.Status.Has(protocol.StatusLastRowSent) {
				rs.finish(m.Status, 0, 0, m.WarningCount)
				return false, nil
			}
			rs.setStatus(m.Status, 0, 0, m.WarningCount)
			return true, nil
		case *protocol.Error:
			err := m.AsServerError()
			rs.fail(err)
			return false, err
		default:
			err := xerrors.NewProtocolError("stmt: unexpected message in fetch stream", nil)
			rs.fail(err)
			return false, err
		}
	}
}

// Close releases a server-side prepared statement via COM_STMT_CLOSE
// (no response is expected).
func (r *Runner) Close(ctx context.Context, p *Prepared) error {
	r.meta.delete(p.StatementID)
	cmd := &protocol.ComStmtClose{StatementID: p.StatementID}
	ex := &exchange.Exchange{Run: func(ctx context.Context, _ <-chan interface{}) error {
		r.Transport.ResetSeq()
		return r.Transport.WritePayload(cmd.Encode())
	}}
	return <-r.Queue.Submit(ctx, ex)
}

// LastInsertIDResult wraps the most recent prepared-execute's
// last_insert_id as a single-row synthetic result named columnName
// (spec §4.6 "Last insert id synthesis").
func (r *Runner) LastInsertIDResult(columnName string, lastInsertID uint64) *ResultSet {
	return synthLastInsertIDResult(columnName, lastInsertID, r.Codecs, r.Ctx)
}
