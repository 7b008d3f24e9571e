// Package connctx holds the per-connection session state shared by the
// handshake FSM, the statement execution flows, and the value codec
// registry (spec §3 "Connection context").
package connctx

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
)

// ZeroDatePolicy controls how an all-zero DATE/DATETIME/TIMESTAMP wire
// value is surfaced to the application (spec §4.7).
type ZeroDatePolicy int

const (
	ZeroDateUseNull ZeroDatePolicy = iota
	ZeroDateUseRound
	ZeroDateException
)

// ServerVersion is a parsed "8.0.34" / "10.11.4-MariaDB" version string.
type ServerVersion struct {
	Raw      string
	Major    int
	Minor    int
	Patch    int
	MariaDB  bool
}

// Context is the mutable per-connection state. It is only ever mutated
// from the connection's own reader/writer goroutines (single-threaded
// cooperative model, spec §5), so no internal locking is required;
// ConnectionID is read concurrently by logging and is therefore atomic.
type Context struct {
	connID atomic.Uint32

	// SessionID is a client-generated correlation id, independent of
	// the server's own numeric connection id, used to tie together log
	// lines and exchange traces for one logical session across a
	// reconnect (spec §3's "Connection context" has no wire
	// representation for this; it exists purely for observability).
	SessionID string

	ServerVersion ServerVersion
	Capability    protocol.Capability
	Status        protocol.ServerStatus

	ClientCollation collation.Collation
	ServerCollation collation.Collation

	TimeZone    *time.Location
	ZeroDate    ZeroDatePolicy

	LocalInfileRoot   string
	LocalInfileBufLen int

	PreserveInstants bool

	Schema string

	WarningCount uint16
}

// New builds a fresh context for a connection about to dial; most
// fields are filled in as the handshake progresses.
func New() *Context {
	c := &Context{
		SessionID:         uuid.NewString(),
		ClientCollation:   collation.ByID(collation.DefaultID),
		TimeZone:          time.Local,
		LocalInfileBufLen: 1 << 16,
	}
	return c
}

func (c *Context) ConnectionID() uint32     { return c.connID.Load() }
func (c *Context) SetConnectionID(id uint32) { c.connID.Store(id) }

// ApplyStatus overwrites the status bitfield from the most recently
// observed OK/EOF message, per the spec's override invariant.
func (c *Context) ApplyStatus(s protocol.ServerStatus) {
	c.Status = s
}

// InTransaction reports the current in-transaction status bit.
func (c *Context) InTransaction() bool { return c.Status.Has(protocol.StatusInTrans) }

// AutoCommit reports the current autocommit status bit.
func (c *Context) AutoCommit() bool { return c.Status.Has(protocol.StatusAutocommit) }

// NoBackslashEscapes reports whether the session disabled backslash
// escaping in string literals (spec §4.7 escaping rules).
func (c *Context) NoBackslashEscapes() bool { return c.Status.Has(protocol.StatusNoBackslashEscape) }
