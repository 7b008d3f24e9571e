package protocol

import (
	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

var errShortColumn = xerrors.NewProtocolError("truncated column-definition packet", nil)

// DecodeColumnCount reads the var-int column count that precedes a
// column-definition stream (spec §4.2 dispatch table, "other | command
// | column count (via var-int)").
func DecodeColumnCount(buf []byte) (uint64, error) {
	_, n, ok := varint.ReadLenEncInt(buf, 0)
	if !ok {
		return 0, errShortColumn
	}
	return n, nil
}

// DecodeColumnDefinition parses one COLUMN_DEFINITION41 packet body
// (protocol-41 form; the handshake FSM rejects a server that does not
// offer CLIENT_PROTOCOL_41).
func DecodeColumnDefinition(buf []byte) (*ColumnDefinition, error) {
	cursor := 0
	cd := &ColumnDefinition{}
	var ok bool
	var b []byte

	cursor, b, ok = varint.ReadLenEncString(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}
	cd.Catalog = string(b)

	cursor, b, ok = varint.ReadLenEncString(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}
	cd.Schema = string(b)

	cursor, b, ok = varint.ReadLenEncString(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}
	cd.Table = string(b)

	cursor, b, ok = varint.ReadLenEncString(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}
	cd.OrgTable = string(b)

	cursor, b, ok = varint.ReadLenEncString(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}
	cd.Name = string(b)

	cursor, b, ok = varint.ReadLenEncString(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}
	cd.OrgName = string(b)

	// Length of fixed fields below is always 0x0c.
	cursor, _, ok = varint.ReadLenEncInt(buf, cursor)
	if !ok {
		return nil, errShortColumn
	}

	var coll uint16
	cursor, coll = varint.ReadU16(buf, cursor)
	cd.Collation = coll

	var length uint32
	cursor, length = varint.ReadU32(buf, cursor)
	cd.ColumnLength = length

	var typ byte
	cursor, typ = varint.ReadByte(buf, cursor)
	cd.Type = collation.ColumnType(typ)

	var flags uint16
	cursor, flags = varint.ReadU16(buf, cursor)
	cd.Flags = flags

	var decimals byte
	_, decimals = varint.ReadByte(buf, cursor)
	cd.Decimals = decimals

	return cd, nil
}
