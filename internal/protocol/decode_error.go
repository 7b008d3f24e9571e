package protocol

import (
	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

var errShortOK = xerrors.NewProtocolError("truncated OK packet", nil)
var errShortError = xerrors.NewProtocolError("truncated ERROR packet", nil)
var errShortHandshake = xerrors.NewProtocolError("truncated handshake packet", nil)

// DecodeError parses an ERR packet body (spec §4.2, §4.9). cursor
// starts past the leading 0xFF header byte.
func DecodeError(buf []byte, cursor int, cap Capability) (*Error, error) {
	if cursor+2 > len(buf) {
		return nil, errShortError
	}
	var code uint16
	cursor, code = varint.ReadU16(buf, cursor)

	e := &Error{Code: code}
	if cap.Has(ClientProtocol41) {
		if cursor >= len(buf) || buf[cursor] != '#' {
			return nil, errShortError
		}
		cursor++ // sql-state marker
		if cursor+5 > len(buf) {
			return nil, errShortError
		}
		e.State = string(buf[cursor : cursor+5])
		cursor += 5
	}
	e.Message = string(buf[cursor:])
	return e, nil
}

// AsServerError converts a decoded Error into the public xerrors
// taxonomy type, attaching no SQL (the statement-execution boundary
// does that, per spec §4.9).
func (e *Error) AsServerError() *xerrors.ServerError {
	return &xerrors.ServerError{Code: e.Code, State: e.State, Message: e.Message}
}
