// Package stmt implements the statement execution flows (spec §4.6):
// text statements, client-prepared statements (tokenize + substitute),
// and the full server-prepared-statement lifecycle, including cursor
// fetch, LOCAL INFILE handling, and last-insert-id synthesis.
//
// The connection's reader goroutine (built as part of the public
// `Conn` facade) is expected to hand each decoded message to the
// exchange queue via Dispatch in this order per result set, mirroring
// `internal/protocol/decodectx.go`'s state machine: an optional
// *protocol.ColumnCount, then exactly one *protocol.MetadataBundle
// (already assembled from the individual ColumnDefinition messages and
// the metadata-stream terminator), then zero or more *protocol.Row,
// then a terminal *protocol.OK or *protocol.EOF. A statement with no
// result set instead receives a single terminal *protocol.OK directly.
// *protocol.Error at any point fails the exchange.
package stmt

import (
	"github.com/zhukovaskychina/rxmysql/internal/cache"
	"github.com/zhukovaskychina/rxmysql/internal/codec"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/internal/query"
)

// Transport is the minimal write-side surface statement flows need
// from the connection's envelope codec (`internal/frame.Codec`
// satisfies this by its method set).
type Transport interface {
	WritePayload(payload []byte) error
	ResetSeq()
}

// Prepared is a server-prepared statement handle (spec §3 "Prepared
// statement"): owned by the connection, looked up by its original SQL
// text through the prepared cache.
type Prepared struct {
	SQL         string
	StatementID uint32
	ParamCount  int
	ColumnCount int
	Columns     []protocol.ColumnDefinition
}

// Runner wires the exchange queue, transport, codec registry, prepared
// cache, and connection context together to drive statement flows. One
// Runner serves exactly one connection.
type Runner struct {
	Transport Transport
	Queue     *exchange.Queue
	Codecs    *codec.Registry
	Prepared  *cache.Prepared
	Ctx       *connctx.Context
	Infile    *InfilePool

	meta *metaBySQL

	// FetchSize controls whether server-prepared executes open a
	// read-only cursor (spec §4.6 step 3); 0 disables cursor fetch.
	FetchSize int
}

// New builds a Runner over an already-open connection's collaborators.
func New(t Transport, q *exchange.Queue, codecs *codec.Registry, prepCache *cache.Prepared, connCtx *connctx.Context) *Runner {
	return &Runner{
		Transport: t,
		Queue:     q,
		Codecs:    codecs,
		Prepared:  prepCache,
		Ctx:       connCtx,
		Infile:    NewInfilePool(4),
		meta:      newMetaBySQL(),
	}
}

// tokenizeForRender re-exposes query.Parse so callers assembling a
// client-prepared statement don't need to import internal/query
// directly.
func tokenizeForRender(sql string) *query.Parsed { return query.Parse(sql) }
