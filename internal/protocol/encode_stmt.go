package protocol

import (
	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
)

// ComStmtPrepare issues COM_STMT_PREPARE for a SQL text containing `?`
// placeholders (spec §4.6 step 1).
type ComStmtPrepare struct {
	SQL string
}

func (*ComStmtPrepare) isClientMessage() {}

func (c *ComStmtPrepare) Encode() []byte {
	buf := []byte{ComStmtPrepareByte}
	return append(buf, []byte(c.SQL)...)
}

// ComStmtClose releases a server-side prepared statement (spec §3
// "Prepared statement" lifecycle, §4.8 eviction).
type ComStmtClose struct {
	StatementID uint32
}

func (*ComStmtClose) isClientMessage() {}

func (c *ComStmtClose) Encode() []byte {
	buf := []byte{ComStmtCloseByte}
	return varint.WriteU32(buf, c.StatementID)
}

// ComStmtReset clears a prepared statement's cursor/buffered-params
// state without closing it.
type ComStmtReset struct {
	StatementID uint32
}

func (*ComStmtReset) isClientMessage() {}

func (c *ComStmtReset) Encode() []byte {
	buf := []byte{ComStmtResetByte}
	return varint.WriteU32(buf, c.StatementID)
}

// Cursor flags for ComStmtExecute (spec §4.6 step 3).
const (
	CursorTypeNoCursor  byte = 0x00
	CursorTypeReadOnly  byte = 0x01
)

// BoundParam is one positional parameter for COM_STMT_EXECUTE: its
// declared wire type, unsigned flag, and already-encoded binary
// payload (produced by internal/codec).
type BoundParam struct {
	Type     collation.ColumnType
	Unsigned bool
	Null     bool
	Value    []byte // binary wire form, ignored when Null
}

// ComStmtExecute lays out: header, statement id, cursor flag,
// iteration count (always 1), null-bitmap, new-params-bound flag,
// per-parameter type codes, then per-parameter payloads
// (spec §4.3 "Execute messages for prepared statements lay out...").
type ComStmtExecute struct {
	StatementID uint32
	CursorType  byte
	Params      []BoundParam
}

func (*ComStmtExecute) isClientMessage() {}

func (c *ComStmtExecute) Encode() []byte {
	buf := []byte{ComStmtExecuteByte}
	buf = varint.WriteU32(buf, c.StatementID)
	buf = varint.WriteByte(buf, c.CursorType)
	buf = varint.WriteU32(buf, 1) // iteration count

	n := len(c.Params)
	if n > 0 {
		bitmap := make([]byte, (n+7)/8)
		for i, p := range c.Params {
			if p.Null {
				bitmap[i/8] |= 1 << uint(i%8)
			}
		}
		buf = append(buf, bitmap...)

		// spec §4.6 step 4: always set "new-params-bound" (simplification
		// vs. the protocol's optional type-reuse).
		buf = varint.WriteByte(buf, 1)

		for _, p := range c.Params {
			typeCode := uint16(p.Type)
			if p.Unsigned {
				typeCode |= 0x8000
			}
			buf = varint.WriteU16(buf, typeCode)
		}

		for _, p := range c.Params {
			if p.Null {
				continue
			}
			buf = append(buf, p.Value...)
		}
	}

	return buf
}

// ComStmtFetch pulls the next batch of rows from a server-side cursor
// opened by ComStmtExecute's CursorTypeReadOnly (spec §4.6 step 3,
// Glossary "Fetch cursor").
type ComStmtFetch struct {
	StatementID uint32
	RowCount    uint32
}

func (*ComStmtFetch) isClientMessage() {}

func (c *ComStmtFetch) Encode() []byte {
	buf := []byte{ComStmtFetchByte}
	buf = varint.WriteU32(buf, c.StatementID)
	return varint.WriteU32(buf, c.RowCount)
}
