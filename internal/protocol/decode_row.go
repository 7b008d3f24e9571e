package protocol

import (
	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

var errShortRow = xerrors.NewProtocolError("truncated row packet", nil)

// DecodeTextRow parses a text-protocol row: one length-encoded string
// per column, or the NULL marker 0xFB at the field position
// (spec §4.2 dispatch table row disambiguation, §6).
func DecodeTextRow(buf []byte, columnCount int) (*Row, error) {
	row := &Row{Values: make([][]byte, columnCount), Null: make([]bool, columnCount)}
	cursor := 0
	for i := 0; i < columnCount; i++ {
		if cursor >= len(buf) {
			return nil, errShortRow
		}
		if buf[cursor] == varint.NullMarker {
			row.Null[i] = true
			cursor++
			continue
		}
		next, v, ok := varint.ReadLenEncString(buf, cursor)
		if !ok {
			return nil, errShortRow
		}
		row.Values[i] = v
		cursor = next
	}
	return row, nil
}

// DecodeBinaryRow parses a COM_STMT_EXECUTE binary-protocol row: a
// leading 0x00 header byte (already consumed by the caller), a NULL
// bitmap of ⌈(columnCount+2)/8⌉ bytes offset by 2 bits, then one
// binary value per non-null column in wire form appropriate to its
// declared ColumnType. This layer returns the raw per-type byte
// windows; internal/codec is responsible for interpreting them.
func DecodeBinaryRow(buf []byte, columns []ColumnDefinition) (*Row, error) {
	columnCount := len(columns)
	row := &Row{Values: make([][]byte, columnCount), Null: make([]bool, columnCount)}

	nullBitmapLen := (columnCount + 7 + 2) / 8
	if nullBitmapLen > len(buf) {
		return nil, errShortRow
	}
	nullBitmap := buf[:nullBitmapLen]
	cursor := nullBitmapLen

	isNull := func(i int) bool {
		bitPos := i + 2
		byteIdx := bitPos / 8
		bitIdx := uint(bitPos % 8)
		return nullBitmap[byteIdx]&(1<<bitIdx) != 0
	}

	for i := 0; i < columnCount; i++ {
		if isNull(i) {
			row.Null[i] = true
			continue
		}
		next, val, err := decodeBinaryValue(buf, cursor, columns[i].Type)
		if err != nil {
			return nil, err
		}
		row.Values[i] = val
		cursor = next
	}
	return row, nil
}

// fixedBinaryWidth returns the wire width of column types the binary
// protocol encodes at a fixed size (spec §4.7 numeric/temporal forms);
// ok is false for variable-length types (strings, blobs, DECIMAL,
// and the temporal types, which carry their own leading length byte).
func fixedBinaryWidth(t collation.ColumnType) (width int, ok bool) {
	switch t {
	case collation.TypeLonglong:
		return 8, true
	case collation.TypeLong, collation.TypeInt24:
		return 4, true
	case collation.TypeShort, collation.TypeYear:
		return 2, true
	case collation.TypeTiny:
		return 1, true
	case collation.TypeDouble:
		return 8, true
	case collation.TypeFloat:
		return 4, true
	}
	return 0, false
}

// decodeBinaryValue slices out the raw wire bytes for one binary-row
// field. Fixed-width numeric types are sliced by their known width;
// everything else (strings, blobs, DECIMAL text form, and the
// variable-length temporal encodings of spec §4.7) is read as a
// length-encoded string; the temporal forms always fit its one-byte
// length prefix.
func decodeBinaryValue(buf []byte, cursor int, t collation.ColumnType) (int, []byte, error) {
	if width, ok := fixedBinaryWidth(t); ok {
		if cursor+width > len(buf) {
			return cursor, nil, errShortRow
		}
		return cursor + width, buf[cursor : cursor+width], nil
	}
	next, v, ok := varint.ReadLenEncString(buf, cursor)
	if !ok {
		return cursor, nil, errShortRow
	}
	return next, v, nil
}
