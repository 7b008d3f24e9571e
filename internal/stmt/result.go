package stmt

import (
	"reflect"

	"github.com/zhukovaskychina/rxmysql/internal/codec"
	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// rowEvent is one pulled row or the terminal error for a ResultSet's
// row stream.
type rowEvent struct {
	row *AppRow
	err error
}

// ResultSet is one result set in a (possibly multi-result) statement
// response: its column metadata plus a pull-based row stream, and the
// trailing OK/EOF summary fields once exhausted.
type ResultSet struct {
	Columns []protocol.ColumnDefinition

	rows chan rowEvent

	AffectedRows uint64
	LastInsertID uint64
	WarningCount uint16
	Status       protocol.ServerStatus
}

func newResultSet(columns []protocol.ColumnDefinition) *ResultSet {
	return &ResultSet{Columns: columns, rows: make(chan rowEvent, exchange_ResponseBuffer)}
}

// exchange_ResponseBuffer bounds how many decoded rows a ResultSet
// will buffer ahead of the caller; matches the exchange layer's own
// bounded-channel backpressure posture (spec §4.5).
const exchange_ResponseBuffer = 64

// Next pulls the next row, or reports end-of-rows / the stream's
// terminal error.
func (rs *ResultSet) Next() (*AppRow, error, bool) {
	ev, ok := <-rs.rows
	if !ok {
		return nil, nil, false
	}
	return ev.row, ev.err, true
}

func (rs *ResultSet) push(row *AppRow) { rs.rows <- rowEvent{row: row} }
func (rs *ResultSet) fail(err error)   { rs.rows <- rowEvent{err: err}; close(rs.rows) }
func (rs *ResultSet) finish(status protocol.ServerStatus, affected, lastInsertID uint64, warnings uint16) {
	rs.setStatus(status, affected, lastInsertID, warnings)
	close(rs.rows)
}

// setStatus records the summary fields of an EOF/OK without closing
// rs.rows: a cursor-opened EXECUTE response's first EOF (CURSOR_EXISTS
// set, LAST_ROW_SENT not yet set) only reports "no rows until FETCH",
// not the end of the result set, so the row channel has to stay open
// for the fetch loop that follows.
func (rs *ResultSet) setStatus(status protocol.ServerStatus, affected, lastInsertID uint64, warnings uint16) {
	rs.Status = status
	rs.AffectedRows = affected
	rs.LastInsertID = lastInsertID
	rs.WarningCount = warnings
}

// AppRow is one decoded row plus enough context (column metadata,
// binary/text framing, zero-date policy) to decode individual fields
// lazily on Scan, rather than eagerly converting every field the
// caller might not read.
type AppRow struct {
	raw      *protocol.Row
	columns  []protocol.ColumnDefinition
	binary   bool
	registry *codec.Registry
	connCtx  *connctx.Context
}

// Scan decodes each column into the corresponding dest pointer. len(dest)
// must equal len(columns); a SQL NULL leaves the destination unchanged
// except when dest is a *interface{}, which receives nil.
func (r *AppRow) Scan(dest ...interface{}) error {
	if len(dest) != len(r.columns) {
		return xerrors.NewProtocolError("stmt: Scan column count mismatch", nil)
	}
	for i, col := range r.columns {
		if r.raw.Null[i] {
			if p, ok := dest[i].(*interface{}); ok {
				*p = nil
			}
			continue
		}
		target := reflect.TypeOf(dest[i])
		if target.Kind() != reflect.Ptr {
			return xerrors.NewProtocolError("stmt: Scan destination must be a pointer", nil)
		}
		elemType := target.Elem()
		c, ok := r.registry.DecoderFor(col.Type, elemType)
		if !ok {
			return xerrors.NewProtocolError("stmt: no codec for column "+col.Name+" of type "+col.Type.String(), nil)
		}
		v, err := c.Decode(r.raw.Values[i], col.Type, r.binary, elemType, r.connCtx)
		if err != nil {
			return xerrors.Annotate(err, "stmt: decoding column %s", col.Name)
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

// Results is the multi-result-set iterator (SPEC_FULL.md §10
// supplemented feature): a statement batch or a single CALL can
// produce more than one result set, chained via the
// MORE_RESULTS_EXISTS status bit (spec §4.6).
type Results struct {
	sets chan *ResultSet
	err  chan error
}

func newResults() *Results {
	return &Results{sets: make(chan *ResultSet, 1), err: make(chan error, 1)}
}

// Next returns the next result set, or false once the statement's
// entire chain has been consumed. Call Err afterward to distinguish a
// clean end from a failure.
func (r *Results) Next() (*ResultSet, bool) {
	s, ok := <-r.sets
	return s, ok
}

// Err returns the statement's terminal error, if any; only meaningful
// after Next has returned false.
func (r *Results) Err() error {
	select {
	case err := <-r.err:
		return err
	default:
		return nil
	}
}

func (r *Results) finish(err error) {
	if err != nil {
		r.err <- err
	}
	close(r.sets)
}

// synthLastInsertIDResult builds the single-row synthetic result spec
// §4.6 "Last insert id synthesis" describes: the caller's requested
// column name holding the terminal OK's last_insert_id as uint64.
func synthLastInsertIDResult(columnName string, lastInsertID uint64, registry *codec.Registry, connCtx *connctx.Context) *ResultSet {
	rs := newResultSet([]protocol.ColumnDefinition{{
		Name:  columnName,
		Type:  collation.TypeLonglong,
		Flags: collation.FlagUnsigned,
	}})
	row := &AppRow{
		raw:      &protocol.Row{Values: [][]byte{[]byte(uintToDecimalASCII(lastInsertID))}, Null: []bool{false}},
		columns:  rs.Columns,
		binary:   false,
		registry: registry,
		connCtx:  connCtx,
	}
	rs.push(row)
	rs.finish(protocol.ServerStatus(0), 0, lastInsertID, 0)
	return rs
}

func uintToDecimalASCII(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
