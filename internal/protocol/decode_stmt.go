package protocol

import "github.com/zhukovaskychina/rxmysql/internal/varint"

// DecodePreparedOK parses COM_STMT_PREPARE's successful response
// header (spec §4.6): cursor starts past the leading 0x00 status byte.
func DecodePreparedOK(buf []byte) (*PreparedOK, error) {
	cursor := 0
	if cursor+11 > len(buf) {
		return nil, errShortOK
	}
	var stmtID uint32
	cursor, stmtID = varint.ReadU32(buf, cursor)

	var colCount, paramCount, warnCount uint16
	cursor, colCount = varint.ReadU16(buf, cursor)
	cursor, paramCount = varint.ReadU16(buf, cursor)
	cursor++ // reserved filler byte
	if cursor+2 <= len(buf) {
		_, warnCount = varint.ReadU16(buf, cursor)
	}

	return &PreparedOK{
		StatementID:  stmtID,
		ColumnCount:  colCount,
		ParamCount:   paramCount,
		WarningCount: warnCount,
	}, nil
}
