package rxmysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/internal/query"
	"github.com/zhukovaskychina/rxmysql/internal/stmt"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// Results is the multi-result-set iterator a statement returns
// (SPEC_FULL.md §10): pull Next for each result set in a chain, then
// Err once Next reports the chain is exhausted.
type Results = stmt.Results

// ResultSet is one result set's column metadata plus its row stream.
type ResultSet = stmt.ResultSet

// Row is one decoded row, scanned into destinations with Scan.
type Row = stmt.AppRow

// Stmt is a server-prepared statement handle (spec §4.6).
type Stmt struct {
	conn *Conn
	p    *stmt.Prepared
}

// Query runs sql as a text statement, escaping args into the SQL text
// with the client-prepared-statement flow (spec §4.6 "client-prepared
// statement"): no server round trip to prepare, parameters are
// rendered as escaped literals.
func (c *Conn) Query(ctx context.Context, sql string, args ...interface{}) (*Results, error) {
	if len(args) == 0 {
		return c.runner.ExecuteText(ctx, sql), nil
	}
	return c.runner.ExecuteClientPrepared(ctx, sql, args)
}

// Exec is Query's non-streaming sibling: it runs sql to completion and
// returns the terminal affected-rows/last-insert-id pair, discarding
// any result-set rows (callers that need rows should use Query).
func (c *Conn) Exec(ctx context.Context, sql string, args ...interface{}) (affectedRows, lastInsertID uint64, err error) {
	results, err := c.Query(ctx, sql, args...)
	if err != nil {
		return 0, 0, err
	}
	for {
		rs, ok := results.Next()
		if !ok {
			return affectedRows, lastInsertID, results.Err()
		}
		for {
			_, rowErr, more := rs.Next()
			if !more {
				break
			}
			if rowErr != nil {
				return affectedRows, lastInsertID, rowErr
			}
		}
		affectedRows, lastInsertID = rs.AffectedRows, rs.LastInsertID
	}
}

// Prepare issues COM_STMT_PREPARE (or returns a cached handle for
// identical SQL text already prepared on this connection) and returns
// a reusable server-side statement (spec §4.6 step 2).
func (c *Conn) Prepare(ctx context.Context, sql string) (*Stmt, error) {
	p, err := c.runner.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &Stmt{conn: c, p: p}, nil
}

// Execute binds params positionally and runs the prepared statement
// (spec §4.6 step 3), opening a cursor automatically when the
// connection's FetchSize is set and the statement returns rows.
func (s *Stmt) Execute(ctx context.Context, params ...interface{}) (*Results, error) {
	return s.conn.runner.Execute(ctx, s.p, params)
}

// ParamCount and ColumnCount report the counts the server returned
// from PREPARE.
func (s *Stmt) ParamCount() int  { return s.p.ParamCount }
func (s *Stmt) ColumnCount() int { return s.p.ColumnCount }

// Close releases the server-side statement handle via COM_STMT_CLOSE.
// Safe to skip for statements obtained through the prepared-statement
// cache; the cache's eviction callback closes them when they age out.
func (s *Stmt) Close(ctx context.Context) error {
	return s.conn.runner.Close(ctx, s.p)
}

// SetFetchSize controls whether server-prepared executes open a
// read-only cursor (spec §4.6 step 3); 0 (the default) disables cursor
// fetch and returns the full result set directly.
func (c *Conn) SetFetchSize(n int) { c.runner.FetchSize = n }

// LastInsertIDResult wraps lastInsertID as a single-row synthetic
// result set named columnName (spec §4.6 "Last insert id synthesis"),
// for callers building their own INSERT-then-read helper.
func (c *Conn) LastInsertIDResult(columnName string, lastInsertID uint64) *ResultSet {
	return c.runner.LastInsertIDResult(columnName, lastInsertID)
}

// Reset issues COM_RESET_CONNECTION (SPEC_FULL.md §10): the server
// clears session state and every prepared statement without the cost
// of a full reconnect.
func (c *Conn) Reset(ctx context.Context) error {
	return c.runner.ResetConnection(ctx)
}

// Warnings issues a `SHOW WARNINGS` follow-up query and returns its
// rows (SPEC_FULL.md §10 "thin wrapper over the text-statement flow
// already specified"). Returns an empty slice, not an error, when the
// last statement's warning count was zero.
func (c *Conn) Warnings(ctx context.Context) ([]Warning, error) {
	results := c.runner.ExecuteText(ctx, "SHOW WARNINGS")
	rs, ok := results.Next()
	if !ok {
		return nil, results.Err()
	}
	var out []Warning
	for {
		row, rowErr, more := rs.Next()
		if !more {
			break
		}
		if rowErr != nil {
			return nil, rowErr
		}
		var w Warning
		if err := row.Scan(&w.Level, &w.Code, &w.Message); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, results.Err()
}

// Warning is one row of `SHOW WARNINGS` (SPEC_FULL.md §10).
type Warning struct {
	Level   string
	Code    uint16
	Message string
}

// applySessionVariables issues one `SET SESSION k = v, ...` statement
// for every connectionUrl `sessionVariables` entry (spec §6), run
// right after login so every subsequent statement on the connection
// observes them.
func (c *Conn) applySessionVariables(ctx context.Context, vars map[string]string) error {
	assignments := make([]string, 0, len(vars))
	for k, v := range vars {
		assignments = append(assignments, fmt.Sprintf("%s = %s", k, query.QuoteString(v, c.ctx.NoBackslashEscapes())))
	}
	return c.runExecuteDrain(ctx, "SET SESSION "+strings.Join(assignments, ", "))
}

// Close sends COM_QUIT, stops the reader goroutine, and closes the
// underlying socket. Any exchanges still queued fail with
// exchange.ErrDisposed (internal/exchange.Queue.Close).
func (c *Conn) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.runner.Transport.ResetSeq()
		_ = c.runner.Transport.WritePayload((&protocol.ComQuit{}).Encode())
		c.queue.Close()
		closeErr = c.netConn.Close()
	})
	return closeErr
}

// Ping issues COM_PING, the cheapest liveness check the wire protocol
// offers: the server always answers OK.
func (c *Conn) Ping(ctx context.Context) error {
	ex := &exchange.Exchange{Run: func(ctx context.Context, responses <-chan interface{}) error {
		c.runner.Transport.ResetSeq()
		if err := c.runner.Transport.WritePayload((&protocol.ComPing{}).Encode()); err != nil {
			return err
		}
		msg, ok := <-responses
		if !ok {
			return xerrors.NewConnectionClosedError(false, nil)
		}
		switch m := msg.(type) {
		case *protocol.Error:
			return m.AsServerError()
		case *protocol.OK:
			return nil
		default:
			return xerrors.NewProtocolError("rxmysql: unexpected message in PING response", nil)
		}
	}}
	return <-c.queue.Submit(ctx, ex)
}
